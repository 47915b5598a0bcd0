package fieldcrypt

import (
	"github.com/hengadev/fieldcrypt/internal/config"
	"github.com/hengadev/fieldcrypt/internal/keys"
	"github.com/hengadev/fieldcrypt/internal/processor"
	"github.com/hengadev/fieldcrypt/internal/strategy"
)

// Algorithm names accepted in configuration and struct tags.
const (
	AlgorithmAES       = strategy.AlgorithmAES
	AlgorithmDES       = strategy.AlgorithmDES
	AlgorithmAESGCM    = strategy.AlgorithmAESGCM
	AlgorithmSecretBox = strategy.AlgorithmSecretBox
)

// Struct tag names.
const (
	// StructTag marks encrypted fields:
	//
	//	Phone string `fieldcrypt:"encrypt,algorithm=AES"`
	StructTag = processor.StructTag

	// ColumnTag overrides the snake_case column name of a field.
	ColumnTag = processor.ColumnTag
)

// Key constraints
const (
	// FallbackKey is used when no key is configured. Data encrypted with it
	// is obfuscated, not protected.
	FallbackKey = keys.FallbackKey

	MinKeyLength = keys.MinKeyLength
	MaxKeyLength = keys.MaxKeyLength
)

// Environment variable names read by LoadConfig.
const (
	EnvEnabled       = config.EnvEnabled
	EnvAlgorithm     = config.EnvAlgorithm
	EnvKey           = config.EnvKey
	EnvMode          = config.EnvMode
	EnvFields        = config.EnvFields
	EnvExcludeTables = config.EnvExcludeTables
	EnvFailurePolicy = config.EnvFailurePolicy
	EnvDialect       = config.EnvDialect
	EnvCacheEnabled  = config.EnvCacheEnabled
	EnvLogLevel      = config.EnvLogLevel
	EnvLogFormat     = config.EnvLogFormat
	EnvConfigPath    = config.EnvConfigPath
)
