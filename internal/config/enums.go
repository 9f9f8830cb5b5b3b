package config

import "git.home.luguber.info/inful/pagerefresh/internal/foundation/normalization"

// AuthType enumerates git transport authentication methods.
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
	AuthTypeSSH   AuthType = "ssh"
)

var authTypeNormalizer = normalization.NewNormalizer(map[string]AuthType{
	"none":  AuthTypeNone,
	"token": AuthTypeToken,
	"basic": AuthTypeBasic,
	"ssh":   AuthTypeSSH,
}, AuthTypeNone)

// PublishKind enumerates the supported publishers.
type PublishKind string

const (
	PublishGitBranch PublishKind = "git-branch"
	PublishDirectory PublishKind = "directory"
	PublishNone      PublishKind = "none"
)

var publishKindNormalizer = normalization.NewNormalizer(map[string]PublishKind{
	"git-branch": PublishGitBranch,
	"gh-pages":   PublishGitBranch,
	"directory":  PublishDirectory,
	"none":       PublishNone,
}, PublishGitBranch)

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelNormalizer = normalization.NewNormalizer(map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

// NormalizeLogLevel maps a raw string to a LogLevel, defaulting to info.
func NormalizeLogLevel(raw string) LogLevel {
	return logLevelNormalizer.Normalize(raw)
}

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormatNormalizer = normalization.NewNormalizer(map[string]LogFormat{
	"json": LogFormatJSON,
	"text": LogFormatText,
}, LogFormatText)

// NormalizeLogFormat maps a raw string to a LogFormat, defaulting to text.
func NormalizeLogFormat(raw string) LogFormat {
	return logFormatNormalizer.Normalize(raw)
}
