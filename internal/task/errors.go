package task

import "errors"

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskNotReady      = errors.New("task not complete")
	ErrDuplicateTask     = errors.New("duplicate task id")
	ErrInvalidTransition = errors.New("invalid state transition: task is terminal")
	ErrEmptyFilename     = errors.New("empty filename")
	ErrEmptyFileLocation = errors.New("empty file location")
)
