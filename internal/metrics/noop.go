package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

// ConnectionOpened is a no-op.
func (n *NoopCollector) ConnectionOpened() {}

// ConnectionClosed is a no-op.
func (n *NoopCollector) ConnectionClosed() {}

// ConnectionRejected is a no-op.
func (n *NoopCollector) ConnectionRejected() {}

// AuthAttempt is a no-op.
func (n *NoopCollector) AuthAttempt(success bool) {}

// FrameProcessed is a no-op.
func (n *NoopCollector) FrameProcessed(frameType string) {}

// MessageSent is a no-op.
func (n *NoopCollector) MessageSent(kind string) {}

// OfflineQueued is a no-op.
func (n *NoopCollector) OfflineQueued(kind string) {}

// OfflineDelivered is a no-op.
func (n *NoopCollector) OfflineDelivered(count int) {}

// SessionEvicted is a no-op.
func (n *NoopCollector) SessionEvicted(reason string) {}

// ArchiveRun is a no-op.
func (n *NoopCollector) ArchiveRun(success bool) {}

// MessagesArchived is a no-op.
func (n *NoopCollector) MessagesArchived(kind string, count int) {}
