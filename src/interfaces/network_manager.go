package interfaces

import "context"

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for outbound HTTP requests.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// Get performs a single GET request to the specified URL with parameters.
	// Non-200 responses are returned as *network.StatusError carrying the body.
	Get(ctx context.Context, url string, params map[string]string) ([]byte, error)
}
