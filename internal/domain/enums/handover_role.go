package enums

type HandoverRole string

const (
	HandoverRoleSource HandoverRole = "source"
	HandoverRoleTarget HandoverRole = "target"
)

func (r HandoverRole) IsValid() bool {
	return r == HandoverRoleSource || r == HandoverRoleTarget
}
