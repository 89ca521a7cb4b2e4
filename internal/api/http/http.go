package http

// Config holds the two listener configurations. The admin surface carries no
// device-token requirement; binding it to a loopback or management interface
// is the access control, with the optional API key as defense in depth.
type Config struct {
	PublicPort      uint   `mapstructure:"public_port"`
	AdminPort       uint   `mapstructure:"admin_port"`
	AdminBind       string `mapstructure:"admin_bind"`
	AdminAPIKeyHash string `mapstructure:"admin_api_key_hash"`
}
