package publish

import "errors"

var (
	ErrPublisherClosed              = errors.New("publisher is closed")
	ErrPublishFailed                = errors.New("failed to publish change")
	ErrMalformedMessage             = errors.New("malformed change message")
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready within the given time period")
)
