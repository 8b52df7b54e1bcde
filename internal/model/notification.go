package model

// NotificationKind identifies a lifecycle notification delivered by the host
type NotificationKind string

const (
	LinkCreated        NotificationKind = "link-created"
	LinkJoined         NotificationKind = "link-joined"
	LinkChanged        NotificationKind = "link-changed"
	LinkDeparted       NotificationKind = "link-departed"
	LinkBroken         NotificationKind = "link-broken"
	Start              NotificationKind = "start"
	WorkloadReady      NotificationKind = "workload-ready"
	ConfigChanged      NotificationKind = "config-changed"
	LeaderElected      NotificationKind = "leader-elected"
	Upgrade            NotificationKind = "upgrade"
	CertificateReady   NotificationKind = "certificate-available"
	CertificateRevoked NotificationKind = "certificate-revoked"
	ForwardAuthChanged NotificationKind = "forward-auth-changed"
	UpdateStatus       NotificationKind = "update-status"
)

// Notification is one lifecycle event, optionally scoped to a link
type Notification struct {
	Kind   NotificationKind `yaml:"kind" json:"kind"`
	LinkID int              `yaml:"link,omitempty" json:"link,omitempty"`
}
