package events

// Settings selects the transport for transcript events. Without Redis the
// events stay in process on a gochannel pub/sub.
type Settings struct {
	RedisEnabled bool   `yaml:"redis_enabled"`
	RedisAddr    string `yaml:"redis_addr"`
	Group        string `yaml:"redis_group"`
	Consumer     string `yaml:"redis_consumer"`
}

func DefaultSettings() Settings {
	return Settings{
		RedisAddr: "localhost:6379",
		Group:     "chat-popup",
		Consumer:  "ui-1",
	}
}
