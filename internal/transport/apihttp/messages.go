package apihttp

type Messages struct {
	Unknown        string
	Network        string
	SessionExpired string
}

func DefaultMessages() Messages {
	return Messages{
		Unknown:        "An unknown error occurred",
		Network:        "Connection error. Check your network and try again.",
		SessionExpired: "Your session has expired. Please sign in again.",
	}
}

func (m Messages) withDefaults() Messages {
	defaults := DefaultMessages()
	if m.Unknown == "" {
		m.Unknown = defaults.Unknown
	}
	if m.Network == "" {
		m.Network = defaults.Network
	}
	if m.SessionExpired == "" {
		m.SessionExpired = defaults.SessionExpired
	}
	return m
}
