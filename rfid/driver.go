package rfid

import "context"

// TagsReportedHandler receives one batch of raw tag records. Drivers call it
// from their own delivery goroutine, in the order the reader produced them.
type TagsReportedHandler func(batch []RawTag)

// Driver is the transport to a physical reader.
//
// A Driver is owned by a single Session. Settings returned by the query
// methods belong to the driver; the Session clones them before modifying.
//
// Example:
//
//	driver := simulator.New(simulator.Config{})
//	session := rfid.NewSession(driver, rfid.Options{})
//	err := session.Connect(ctx, "192.168.17.246")
type Driver interface {
	Connect(ctx context.Context, address string) error
	Disconnect() error

	QueryFeatureSet(ctx context.Context) (FeatureSet, error)
	QueryDefaultSettings(ctx context.Context) (*Settings, error)
	QuerySettings(ctx context.Context) (*Settings, error)
	ApplySettings(ctx context.Context, settings *Settings) error

	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// OnTagsReported replaces the batch handler. A nil handler discards batches.
	OnTagsReported(handler TagsReportedHandler)

	ReadMemory(ctx context.Context, req ReadRequest) ([]byte, error)
}
