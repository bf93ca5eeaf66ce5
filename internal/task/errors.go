package task

import "errors"

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrBusy         = errors.New("server busy: max concurrent tasks reached")
	ErrInstanceBusy = errors.New("instance already has a task in progress")
)
