package coordinator

import (
	"errors"
	"fmt"

	"github.com/glaciation-heu/sap-uc3/crypto"
)

// Collaboration is a registered MPC program together with the number of
// input parties it waits for.
type Collaboration struct {
	ID int64 `json:"id"`
	// Name is a human readable label.
	Name string `json:"name"`
	// Program is the MPC program source. It is base64 in JSON.
	Program []byte `json:"mpc_program"`
	// InputSchema is the CSV header line describing one input row.
	InputSchema string `json:"csv_specification"`
	// ParticipantCount is the number of uploads required before execution.
	ParticipantCount int `json:"participation_number"`
	// ConfigID references the provider configuration.
	ConfigID int64 `json:"config_id"`
	// OutputParties are notification endpoints. Duplicates are allowed.
	OutputParties []string `json:"output_parties"`
}

// NewCollaboration is the input for creating a collaboration.
type NewCollaboration struct {
	Name             string
	Program          []byte
	InputSchema      string
	ParticipantCount int
	Config           *ProviderConfig
}

// Validate checks that the collaboration can be executed at all.
func (n *NewCollaboration) Validate() error {
	if n.Name == "" {
		return errors.New("name is required")
	}
	if len(n.Program) == 0 {
		return errors.New("mpc program is required")
	}
	if n.ParticipantCount < 1 {
		return fmt.Errorf("number of parties must be at least 1, got %d", n.ParticipantCount)
	}
	if n.Config == nil {
		return errors.New("computation service config is required")
	}
	return n.Config.Validate()
}

// Participation links an input party to a collaboration. ShareIDs stays nil
// until the party confirms its upload.
type Participation struct {
	CollaborationID int64    `json:"collaboration_id"`
	PartyID         int64    `json:"party_id"`
	ShareIDs        []string `json:"secret_ids"`
}

// Uploaded reports whether the party has confirmed its upload.
func (p *Participation) Uploaded() bool {
	return p.ShareIDs != nil
}

// ComputationResult is the terminal marker of a collaboration. The row is
// created once when quorum is reached and finished exactly once.
type ComputationResult struct {
	CollaborationID int64    `json:"collaboration_id"`
	Finished        bool     `json:"finished"`
	ResultIDs       []string `json:"result_ids"`
	Error           *string  `json:"error"`
}

// Failed reports whether the execution finished with an error.
func (r *ComputationResult) Failed() bool {
	return r.Finished && r.Error != nil
}

// ProviderEndpoint locates the services of one computation provider.
type ProviderEndpoint struct {
	ID                  int    `json:"id"`
	AmphoraServiceURL   string `json:"amphoraServiceUrl"`
	CastorServiceURL    string `json:"castorServiceUrl"`
	EphemeralServiceURL string `json:"ephemeralServiceUrl"`
	BaseURL             string `json:"baseUrl"`
}

// ProviderConfig describes the provider set and field of a collaboration.
type ProviderConfig struct {
	ID              int64              `json:"-"`
	Prime           string             `json:"prime"`
	R               string             `json:"r"`
	RInv            string             `json:"rinv"`
	NoSSLValidation bool               `json:"noSslValidation"`
	Providers       []ProviderEndpoint `json:"providers"`
}

// Validate checks the field constants and that at least one provider exists.
func (c *ProviderConfig) Validate() error {
	if _, err := c.Field(); err != nil {
		return err
	}
	if len(c.Providers) == 0 {
		return errors.New("at least one provider is required")
	}
	return nil
}

// Field builds the field described by the configuration.
func (c *ProviderConfig) Field() (*crypto.Field, error) {
	return crypto.NewField(c.Prime, c.R, c.RInv, crypto.DefaultLimbWidth)
}

// ExecutionResult is delivered to output parties once a collaboration finished.
type ExecutionResult struct {
	Message         string  `json:"message"`
	Code            int     `json:"code"`
	CollaborationID int64   `json:"collaborationId"`
	SecretID        *string `json:"secretId"`
}
