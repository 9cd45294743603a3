package apperrors

import "errors"

var (
	ErrNoDownloadToken        = errors.New("server returned no download token")
	ErrFeatureDisabled        = errors.New("statement statistics are disabled on the server")
	ErrIncompleteQueryOptions = errors.New("query options must be supplied as a complete value")
)
