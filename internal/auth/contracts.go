package auth

// Wire contracts of the /auth endpoints. Field names are part of the public
// API and must not change.

// SignUpRequest is the body of POST /auth/sign-up and /auth/sign-up/validate.
type SignUpRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Surname  string `json:"surname" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72,password"`
}

// SignInRequest is the body of POST /auth/sign-in.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SocialRequest is the body of POST /auth/social.
type SocialRequest struct {
	FirebaseToken string `json:"firebase_token" validate:"required"`
}

// PasswordResetRequest is the body of POST /auth/password/request.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PasswordChangeRequest is the body of POST /auth/password/change.
type PasswordChangeRequest struct {
	Token          string `json:"token" validate:"required"`
	Password       string `json:"password" validate:"required,max=72,password"`
	RepeatPassword string `json:"repeatPassword" validate:"required,eqfield=Password"`
}

// TokenResponse is returned by every endpoint that issues a token.
type TokenResponse struct {
	Token string `json:"token"`
}
