package separation

import "github.com/cockroachdb/errors/domains"

var (
	ToolNotFound         = domains.New("tool_not_found")
	ToolInvocationFailed = domains.New("tool_invocation_failed")
	UnknownSplitter      = domains.New("unknown_splitter")
	UnknownModel         = domains.New("unknown_model")
)
