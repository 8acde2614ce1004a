package interfaces

import (
	"context"

	"github.com/customeros/domainstack/internal/enum"
	"github.com/customeros/domainstack/internal/models"
)

type ConnectRequest struct {
	Domain    string `json:"domain"`
	Registrar string `json:"registrar"`
}

type StepResult struct {
	Step    string          `json:"step"`
	Status  enum.StepStatus `json:"status"`
	Message string          `json:"message,omitempty"`
	Advice  string          `json:"advice,omitempty"`
}

type RegistrarInstructions struct {
	Registrar   enum.Registrar `json:"registrar"`
	Nameservers []string       `json:"nameservers"`
	Steps       []string       `json:"steps"`
	HelpURL     string         `json:"helpUrl,omitempty"`
}

type ConnectResult struct {
	Domain       *models.Domain         `json:"domain"`
	Instructions *RegistrarInstructions `json:"instructions,omitempty"`
	Steps        []StepResult           `json:"steps"`
}

type ProvisionRequest struct {
	Purposes      []enum.RecordPurpose `json:"purposes"`
	DKIMPublicKey string               `json:"dkimPublicKey"`
}

type ProvisionResult struct {
	Batch   *BatchResult           `json:"batch"`
	Session *models.PollingSession `json:"session,omitempty"`
}

type ProvisioningService interface {
	ConnectOrResume(ctx context.Context, tenant string, request ConnectRequest) (*ConnectResult, error)
	GetDomain(ctx context.Context, tenant, domain string) (*models.Domain, error)
	VerifyNameservers(ctx context.Context, tenant, domain string) (*NameserverVerifyResult, error)
	ProvisionRecords(ctx context.Context, tenant, domain string, request ProvisionRequest) (*ProvisionResult, error)
	CheckMailDirectoryVerification(ctx context.Context, tenant, domain string) (*models.Domain, error)
	CheckPendingMailDirectory(ctx context.Context) (int, error)
	GetActiveSession(ctx context.Context, tenant, domain string) (*models.PollingSession, error)
}
