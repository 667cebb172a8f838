package kms

import (
	"context"
	"fmt"

	cloudkms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// CloudOracle wraps a Cloud KMS asymmetric decryption key version.
type CloudOracle struct {
	client     *cloudkms.KeyManagementClient
	keyVersion string
}

// NewCloudOracle dials Cloud KMS. keyVersion is the full resource name
// projects/*/locations/*/keyRings/*/cryptoKeys/*/cryptoKeyVersions/*.
func NewCloudOracle(ctx context.Context, keyVersion string, opts ...option.ClientOption) (*CloudOracle, error) {
	client, err := cloudkms.NewKeyManagementClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create kms client: %w", err)
	}
	return &CloudOracle{client: client, keyVersion: keyVersion}, nil
}

func (o *CloudOracle) KeyName() string { return o.keyVersion }

func (o *CloudOracle) PublicKey(ctx context.Context) (PublicKey, error) {
	resp, err := o.client.GetPublicKey(ctx, &kmspb.GetPublicKeyRequest{Name: o.keyVersion})
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: get public key: %v", ErrUnavailable, err)
	}
	return PublicKey{
		Name:   resp.GetName(),
		PEM:    resp.GetPem(),
		CRC32C: resp.GetPemCrc32C().GetValue(),
	}, nil
}

func (o *CloudOracle) AsymmetricDecrypt(ctx context.Context, ciphertext []byte, ciphertextCRC32C int64) (DecryptResult, error) {
	resp, err := o.client.AsymmetricDecrypt(ctx, &kmspb.AsymmetricDecryptRequest{
		Name:             o.keyVersion,
		Ciphertext:       ciphertext,
		CiphertextCrc32C: wrapperspb.Int64(ciphertextCRC32C),
	})
	if err != nil {
		return DecryptResult{}, fmt.Errorf("%w: asymmetric decrypt: %v", ErrUnavailable, err)
	}
	return DecryptResult{
		Plaintext:          resp.GetPlaintext(),
		PlaintextCRC32C:    resp.GetPlaintextCrc32C().GetValue(),
		VerifiedCiphertext: resp.GetVerifiedCiphertextCrc32C(),
	}, nil
}

func (o *CloudOracle) Close() error {
	return o.client.Close()
}
