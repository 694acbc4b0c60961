package dto

// RegisterRequest represents a signup request
type RegisterRequest struct {
	Username        string `json:"username" form:"username" binding:"required"`
	Email           string `json:"email" form:"email" binding:"required"`
	Password        string `json:"password" form:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password" binding:"required"`
}

// LoginRequest represents a login request. Username may also hold an email.
type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	Success     bool     `json:"success"`
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int      `json:"expires_in"`
	User        UserInfo `json:"user"`
	Claimed     int64    `json:"claimed_photos"`
}

// UserInfo represents user information in response
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserResponse is the profile of the current user with usage stats
type UserResponse struct {
	ID              string  `json:"id"`
	Username        string  `json:"username"`
	Email           string  `json:"email"`
	ImagesProcessed int     `json:"images_processed"`
	HasFreeAccess   bool    `json:"has_free_access"`
	HasPassword     bool    `json:"has_password"`
	MemberSince     string  `json:"member_since"`
	CreatedAt       string  `json:"created_at"`
	LastLoginAt     *string `json:"last_login_at"`
}

// AuthCheckResponse reports whether the caller has a valid session
type AuthCheckResponse struct {
	Authenticated bool `json:"authenticated"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
