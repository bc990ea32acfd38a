package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")

	ErrTitleRequired       = errors.New("recipe title must be provided")
	ErrRecipeNotFound      = errors.New("recipe not found")
	ErrRecipientNotFound   = errors.New("destination user not found")
	ErrDuplicateTitle      = errors.New("could not avoid duplicate title")
	ErrImageUpload         = errors.New("error uploading image")
	ErrInvalidImage        = errors.New("invalid image")
	ErrImageTooLarge       = errors.New("image is too large")
	ErrUnknownExportFormat = errors.New("unknown export format")

	ErrLabelNotFound = errors.New("label not found")
	ErrLabelExists   = errors.New("label with that title already exists")
)
