package handlers

import "github.com/customeros/domainstack/interfaces"

type APIHandlers struct {
	Domains  *DomainHandler
	Sessions *SessionHandler
}

func InitHandlers(provisioning interfaces.ProvisioningService, propagation interfaces.PropagationService) *APIHandlers {
	return &APIHandlers{
		Domains:  NewDomainHandler(provisioning, propagation),
		Sessions: NewSessionHandler(propagation),
	}
}
