package protocol

import (
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/glaciation-heu/sap-uc3/crypto"
)

// OutputBundle carries one provider's field-encoded share components. Each
// field is the concatenation of one encoded word per slot.
type OutputBundle struct {
	SecretShares []byte
	RShares      []byte
	VShares      []byte
	WShares      []byte
	UShares      []byte
}

// IsEmpty reports whether the bundle carries no shares at all.
func (b *OutputBundle) IsEmpty() bool {
	return len(b.SecretShares) == 0 && len(b.RShares) == 0 && len(b.VShares) == 0 &&
		len(b.WShares) == 0 && len(b.UShares) == 0
}

// DeliveryObject renders the bundle with base64 components for transport.
func (b *OutputBundle) DeliveryObject() OutputDeliveryObject {
	enc := base64.StdEncoding.EncodeToString
	return OutputDeliveryObject{
		SecretShares: enc(b.SecretShares),
		RShares:      enc(b.RShares),
		VShares:      enc(b.VShares),
		WShares:      enc(b.WShares),
		UShares:      enc(b.UShares),
	}
}

// OutputDeliveryObject is the JSON form of an OutputBundle.
type OutputDeliveryObject struct {
	SecretShares string `json:"secretShares"`
	RShares      string `json:"rShares"`
	VShares      string `json:"vShares"`
	WShares      string `json:"wShares"`
	UShares      string `json:"uShares"`
}

// Bundle decodes the base64 components.
func (o OutputDeliveryObject) Bundle() (*OutputBundle, error) {
	var b OutputBundle
	fields := []struct {
		name string
		src  string
		dst  *[]byte
	}{
		{"secretShares", o.SecretShares, &b.SecretShares},
		{"rShares", o.RShares, &b.RShares},
		{"vShares", o.VShares, &b.VShares},
		{"wShares", o.WShares, &b.WShares},
		{"uShares", o.UShares, &b.UShares},
	}
	for _, f := range fields {
		raw, err := base64.StdEncoding.DecodeString(f.src)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", crypto.ErrMalformedInput, f.name, err)
		}
		*f.dst = raw
	}
	return &b, nil
}

// Tag is a key/value annotation attached to a secret.
type Tag struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	ValueType string `json:"valueType,omitempty"`
}

// DataObject holds base64 of one or more concatenated field-encoded words.
type DataObject struct {
	Value string `json:"value"`
}

// MaskedInput is the upload sent to every provider after blinding.
type MaskedInput struct {
	SecretID string       `json:"secretId"`
	Data     []DataObject `json:"data"`
	Tags     []Tag        `json:"tags,omitempty"`
}

// NewMaskedInput encodes blinded values, one data object per value.
func NewMaskedInput(f *crypto.Field, secretID string, blinded []*big.Int) *MaskedInput {
	in := &MaskedInput{SecretID: secretID, Data: make([]DataObject, 0, len(blinded))}
	for _, b := range blinded {
		in.Data = append(in.Data, DataObject{Value: base64.StdEncoding.EncodeToString(f.Encode(b))})
	}
	return in
}

// Blocks returns the decoded byte blocks of every data object.
func (m *MaskedInput) Blocks() ([][]byte, error) {
	blocks := make([][]byte, 0, len(m.Data))
	for i, d := range m.Data {
		raw, err := base64.StdEncoding.DecodeString(d.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: data[%d]: %v", crypto.ErrMalformedInput, i, err)
		}
		blocks = append(blocks, raw)
	}
	return blocks, nil
}

// SecretShareResponse is returned by the secret-share endpoint. Data repeats
// SecretShares for consumers that only read the data field.
type SecretShareResponse struct {
	SecretID     string `json:"secretId"`
	Tags         []Tag  `json:"tags"`
	SecretShares string `json:"secretShares"`
	RShares      string `json:"rShares"`
	VShares      string `json:"vShares"`
	WShares      string `json:"wShares"`
	UShares      string `json:"uShares"`
	Data         string `json:"data"`
}

// NewSecretShareResponse wraps a bundle for the given secret.
func NewSecretShareResponse(secretID string, b *OutputBundle) SecretShareResponse {
	odo := b.DeliveryObject()
	return SecretShareResponse{
		SecretID:     secretID,
		Tags:         []Tag{},
		SecretShares: odo.SecretShares,
		RShares:      odo.RShares,
		VShares:      odo.VShares,
		WShares:      odo.WShares,
		UShares:      odo.UShares,
		Data:         odo.SecretShares,
	}
}

// DeliveryObject drops the secret metadata.
func (r SecretShareResponse) DeliveryObject() OutputDeliveryObject {
	return OutputDeliveryObject{
		SecretShares: r.SecretShares,
		RShares:      r.RShares,
		VShares:      r.VShares,
		WShares:      r.WShares,
		UShares:      r.UShares,
	}
}
