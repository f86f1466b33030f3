package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// HealthEndpoint reports whether the key file is present
	HealthEndpoint = "/health"
	// ConfigEndpoint exposes the default contract and provider for clients
	ConfigEndpoint = "/config"
	// PublicKeyEndpoint serves the public half of the key file
	PublicKeyEndpoint = "/publicKey"
	// FinalizeEndpoint aggregates the ciphertexts of a contract and
	// finalizes its tally
	FinalizeEndpoint = "/aggregate-and-finalize"
	// TalliesEndpoint lists the contracts with a finalized tally
	TalliesEndpoint = "/tallies"
	// TallyEndpoint returns the finalized tally of a contract
	ContractURLParam = "contract"
	TallyEndpoint    = "/tallies/{" + ContractURLParam + "}"
)
