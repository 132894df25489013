package schemaforge

import "github.com/burugo/schemaforge/common"

// Error kinds re-exported from common so callers only need the root package.
type (
	ConnectionError              = common.ConnectionError
	NotConnectedError            = common.NotConnectedError
	UnsupportedTypeError         = common.UnsupportedTypeError
	UnknownColumnError           = common.UnknownColumnError
	StatementExecutionError      = common.StatementExecutionError
	AmbiguousForeignKeyDropError = common.AmbiguousForeignKeyDropError
	InvalidForeignKeyError       = common.InvalidForeignKeyError
	UnknownAdapterError          = common.UnknownAdapterError
	ConfigError                  = common.ConfigError
)

var (
	ErrNotConnected          = common.ErrNotConnected
	ErrTransactionInProgress = common.ErrTransactionInProgress
	ErrNoTransaction         = common.ErrNoTransaction
	ErrUnsupportedOperation  = common.ErrUnsupportedOperation
	ErrUnsupportedType       = common.ErrUnsupportedType
	ErrUnknownColumn         = common.ErrUnknownColumn
	ErrStatement             = common.ErrStatement
	ErrAmbiguousForeignKey   = common.ErrAmbiguousForeignKey
	ErrInvalidForeignKey     = common.ErrInvalidForeignKey
	ErrConnection            = common.ErrConnection
	ErrUnknownAdapter        = common.ErrUnknownAdapter
	ErrInvalidConfig         = common.ErrInvalidConfig
	ErrLockNotAcquired       = common.ErrLockNotAcquired
)
