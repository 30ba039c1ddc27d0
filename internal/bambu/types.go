// Package bambu provides a client for the Bambu Lab cloud API.
// This package centralizes all vendor API interactions for the application:
// identity (login, email code verification) and device actions (status, AMS,
// cloud files, print control, slicer presets).
package bambu

import (
	"time"
)

// LoginResult is the outcome of a login or code-verification call.
// An empty AccessToken on a successful call means the vendor requires a
// second factor before issuing a token.
type LoginResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // Token lifetime in seconds, 0 if not reported
	LoginType    string `json:"loginType"` // "verifyCode" when an emailed code is required
}

// NeedsVerification reports whether the vendor withheld the token pending
// an emailed verification code.
func (r *LoginResult) NeedsVerification() bool {
	return r.AccessToken == ""
}

// Expiry resolves the token expiry: the vendor-reported lifetime when present,
// otherwise the exp claim embedded in the token itself. Zero when unknown.
func (r *LoginResult) Expiry(now time.Time) time.Time {
	if r.ExpiresIn > 0 {
		return now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return TokenExpiry(r.AccessToken)
}

// BoundDevice is one printer bound to the account.
type BoundDevice struct {
	DevID          string `json:"dev_id"`
	Name           string `json:"name"`
	Online         bool   `json:"online"`
	PrintStatus    string `json:"print_status"`
	DevModelName   string `json:"dev_model_name"`
	DevProductName string `json:"dev_product_name"`
	NozzleDiameter string `json:"nozzle_diameter"`
}

type bindResponse struct {
	Devices []BoundDevice `json:"devices"`
}

// PrintTask is one entry in the account's task history.
type PrintTask struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"` // Percent complete
	DeviceID     string `json:"deviceId"`
	StartTimeStr string `json:"startTime"`
	CostTime     int64  `json:"costTime"` // Elapsed seconds

	StartTime time.Time `json:"-"`
}

type taskListResponse struct {
	Total int         `json:"total"`
	Hits  []PrintTask `json:"hits"`
}

// DeviceStatus combines the bound-device record with its latest task.
type DeviceStatus struct {
	Device BoundDevice
	Task   *PrintTask // nil when the device has no task history
}

// AMSTray is one filament slot in an AMS unit.
type AMSTray struct {
	Slot         int    `json:"slot"`
	FilamentType string `json:"filament_type"`
	Color        string `json:"color"`
	Remaining    int    `json:"remaining"` // Percent of spool remaining, -1 if unknown
}

// AMSUnit is one AMS (Automatic Material System) attached to a device.
type AMSUnit struct {
	ID       string    `json:"id"`
	Model    string    `json:"model"`
	Humidity int       `json:"humidity"`
	Trays    []AMSTray `json:"trays"`
}

type amsResponse struct {
	AMS []AMSUnit `json:"ams"`
}

// CloudFile is one stored file in the account's cloud space.
type CloudFile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	CreateTimeStr string `json:"create_time"`

	CreateTime time.Time `json:"-"`
}

type fileListResponse struct {
	Total int         `json:"total"`
	Files []CloudFile `json:"files"`
}

// UploadResult is the vendor acknowledgment of a stored file.
type UploadResult struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
}

// PrintJob is the vendor acknowledgment of a print control command.
type PrintJob struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// Preset is one slicer setting profile.
type Preset struct {
	SettingID string `json:"setting_id"`
	Name      string `json:"name"`
	Version   string `json:"version"`
}

// PresetGroup splits presets into vendor-provided and user-created.
type PresetGroup struct {
	Public  []Preset `json:"public"`
	Private []Preset `json:"private"`
}

// PresetList is the slicer setting catalog for the account.
type PresetList struct {
	Filament PresetGroup `json:"filament"`
	Print    PresetGroup `json:"print"`
	Printer  PresetGroup `json:"printer"`
}
