package models

// Capability identifies which plugin interface an action implements.
type Capability string

const (
	CapabilityWorkflowAction  Capability = "WORKFLOW_ACTION"
	CapabilityEditionAction   Capability = "EDITION_ACTION"
	CapabilityCatalogueHook   Capability = "CATALOGUE_HOOK"
	CapabilityNewswireDecoder Capability = "NEWSWIRE_DECODER"
)

// Type classes a job can target.
const (
	TypeClassNewsItem        = "NewsItem"
	TypeClassEdition         = "Edition"
	TypeClassNewswireService = "NewswireService"
	TypeClassMediaItem       = "MediaItem"
)
