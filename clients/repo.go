package clients

// Repo is the client directory. The session engine only reads from it; Upsert and
// Delete exist for bootstrap and tests.
type Repo interface {
	Get(clientID string) (*Client, error)
	// List returns clients ordered by ID. A limit of zero returns everything from offset.
	List(offset, limit int) ([]*Client, error)
	Upsert(client *Client) error
	Delete(clientID string) error
}
