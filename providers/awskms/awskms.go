// Package awskms wraps fieldcrypt column keys with an AWS KMS key before they
// are written to a key store.
package awskms

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/hengadev/fieldcrypt"
)

// kmsClient is the subset of the KMS API used by Wrapper.
type kmsClient interface {
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Wrapper implements fieldcrypt.KeyWrapper with AWS KMS.
type Wrapper struct {
	client  kmsClient
	keyID   string
	region  string
	context map[string]string
}

var _ fieldcrypt.KeyWrapper = (*Wrapper)(nil)

// Config holds the settings for New.
type Config struct {
	// KeyID is the KMS key ID, ARN or alias used to wrap keys.
	KeyID string
	// Region overrides the region of the default AWS configuration.
	Region string
	// AWSConfig replaces the default AWS configuration when set.
	AWSConfig *aws.Config
	// EncryptionContext is bound to every wrapped key and must match on unwrap.
	EncryptionContext map[string]string
}

// New creates a Wrapper. Credentials come from the default AWS chain unless
// cfg.AWSConfig is set.
func New(ctx context.Context, cfg Config) (*Wrapper, error) {
	if strings.TrimSpace(cfg.KeyID) == "" {
		return nil, fmt.Errorf("%w: KMS key ID is required", fieldcrypt.ErrInvalidConfiguration)
	}

	var awsCfg aws.Config
	if cfg.AWSConfig != nil {
		awsCfg = *cfg.AWSConfig
	} else {
		var opts []func(*config.LoadOptions) error
		if cfg.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Region))
		}
		loaded, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load AWS config: %w", fieldcrypt.ErrKeyStoreUnavailable, err)
		}
		awsCfg = loaded
	}

	return &Wrapper{
		client:  kms.NewFromConfig(awsCfg),
		keyID:   cfg.KeyID,
		region:  awsCfg.Region,
		context: cfg.EncryptionContext,
	}, nil
}

// KeyID returns the configured KMS key reference.
func (w *Wrapper) KeyID() string {
	return w.keyID
}

// Region returns the AWS region the client talks to.
func (w *Wrapper) Region() string {
	return w.region
}

// Wrap encrypts key with the KMS key and returns the ciphertext blob as base64.
func (w *Wrapper) Wrap(ctx context.Context, key []byte) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("%w: key to wrap is empty", fieldcrypt.ErrInvalidKey)
	}
	out, err := w.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(w.keyID),
		Plaintext:         key,
		EncryptionContext: w.context,
	})
	if err != nil {
		return "", fmt.Errorf("%w: KMS encrypt with key %s: %w", fieldcrypt.ErrEncryptionFailed, w.keyID, err)
	}
	if out == nil || len(out.CiphertextBlob) == 0 {
		return "", fmt.Errorf("%w: KMS returned no ciphertext", fieldcrypt.ErrEncryptionFailed)
	}
	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

// Unwrap reverses Wrap.
func (w *Wrapper) Unwrap(ctx context.Context, wrapped string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: wrapped key is not base64: %w", fieldcrypt.ErrInvalidFormat, err)
	}
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: wrapped key is empty", fieldcrypt.ErrInvalidFormat)
	}
	out, err := w.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:             aws.String(w.keyID),
		CiphertextBlob:    blob,
		EncryptionContext: w.context,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: KMS decrypt with key %s: %w", fieldcrypt.ErrDecryptionFailed, w.keyID, err)
	}
	if out == nil || out.Plaintext == nil {
		return nil, fmt.Errorf("%w: KMS returned no plaintext", fieldcrypt.ErrDecryptionFailed)
	}
	return out.Plaintext, nil
}

// ResolveKeyID returns the key ID behind an alias. A missing "alias/" prefix is
// added.
func (w *Wrapper) ResolveKeyID(ctx context.Context, alias string) (string, error) {
	if alias == "" {
		return "", fmt.Errorf("%w: alias cannot be empty", fieldcrypt.ErrInvalidConfiguration)
	}
	if !strings.HasPrefix(alias, "alias/") {
		alias = "alias/" + alias
	}

	out, err := w.client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(alias)})
	if err != nil {
		return "", fmt.Errorf("%w: failed to describe KMS key %s: %w", fieldcrypt.ErrKeyStoreUnavailable, alias, err)
	}
	if out == nil || out.KeyMetadata == nil || out.KeyMetadata.KeyId == nil {
		return "", fmt.Errorf("%w: no key metadata returned for %s", fieldcrypt.ErrKeyStoreUnavailable, alias)
	}
	return *out.KeyMetadata.KeyId, nil
}

// CreateKey creates a symmetric encrypt/decrypt KMS key and returns its ID.
func (w *Wrapper) CreateKey(ctx context.Context, description string) (string, error) {
	out, err := w.client.CreateKey(ctx, &kms.CreateKeyInput{
		Description: aws.String(description),
		KeyUsage:    types.KeyUsageTypeEncryptDecrypt,
		KeySpec:     types.KeySpecSymmetricDefault,
		MultiRegion: aws.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to create KMS key: %w", fieldcrypt.ErrKeyStoreUnavailable, err)
	}
	if out == nil || out.KeyMetadata == nil || out.KeyMetadata.KeyId == nil {
		return "", fmt.Errorf("%w: no key metadata returned", fieldcrypt.ErrKeyStoreUnavailable)
	}
	return *out.KeyMetadata.KeyId, nil
}
