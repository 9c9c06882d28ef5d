package peer

import "errors"

var (
	ErrIncorrectContentKind = errors.New("content kind does not match its type")
	ErrAlreadyPublishing    = errors.New("topic is already published")
	ErrNotPublishing        = errors.New("topic is not published")
	ErrAlreadySubscribed    = errors.New("topic is already subscribed")
	ErrNotSubscribed        = errors.New("topic is not subscribed")
	ErrInvalidTimeout       = errors.New("timeout must not be negative")
	ErrInvalidInterval      = errors.New("interval must be positive")
	ErrTopicTooLong         = errors.New("topic longer than 255 bytes")
	ErrUnknownTopic         = errors.New("request for a topic that is not published")
	ErrUnsafeName           = errors.New("file name escapes the download directory")
	ErrClosed               = errors.New("controller closed")
	ErrInvalidConfig        = errors.New("invalid config")
)
