package model

import "strings"

// Instruction is one row of the help sheet.
type Instruction struct {
	Topic string `json:"topic"`
	Text  string `json:"text"`
	Link  string `json:"link,omitempty"`
}

// ForDevice reports whether the topic mentions the device name.
func (i Instruction) ForDevice(d Device) bool {
	return strings.Contains(strings.ToLower(i.Topic), string(d))
}

// Stats is the admin overview.
type Stats struct {
	Users           int `json:"users"`
	FreeConfigs     int `json:"free_configs"`
	AssignedConfigs int `json:"assigned_configs"`
	LiveInvoices    int `json:"live_invoices"`
}
