package models

import (
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// ClientInfo describes the caller of an authentication flow.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Normalized returns a copy with blank fields replaced by "Unknown".
func (c ClientInfo) Normalized() ClientInfo {
	if strings.TrimSpace(c.IP) == "" {
		c.IP = common.UnknownClientValue
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = common.UnknownClientValue
	}
	return c
}
