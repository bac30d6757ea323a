package inventory

// Router is a routers row joined with its device.
type Router struct {
	ID            int64  `json:"id"`
	DeviceID      int64  `json:"device_id"`
	LoginUsername string `json:"login_username"`
	LoginPassword string `json:"login_password"`
	WifiSSID      string `json:"wifi_ssid"`
	WifiPassword  string `json:"wifi_password"`
	Hidden        int    `json:"hidden"`

	Address string `json:"ip"`
	Name    string `json:"name"`
	Status  Status `json:"status"`
}

// Printer is a printers row joined with its device.
type Printer struct {
	ID       int64  `json:"id"`
	DeviceID int64  `json:"device_id"`
	Model    string `json:"model"`
	NPat     string `json:"npat"`
	LI       string `json:"li"`
	LF       string `json:"lf"`
	Online   int    `json:"online"`

	Address string `json:"ip"`
	Sector  string `json:"sector"`
	Status  Status `json:"status"`
}

// Box is a power box row joined with its device.
type Box struct {
	ID          int64 `json:"id"`
	DeviceID    int64 `json:"device_id"`
	PowerStatus int   `json:"power_status"`

	Address string `json:"ip"`
	Name    string `json:"name"`
	Status  Status `json:"status"`
}

// User is an API account. The password hash is never serialised.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// ValidFlag reports whether v is one of the 0/1 values accepted by the
// printer online and box power status columns.
func ValidFlag(v int) bool {
	return v == 0 || v == 1
}
