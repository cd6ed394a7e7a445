package server

import (
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/emission"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
)

type emissionResponse struct {
	Success       bool                    `json:"success"`
	Status        storage.Status          `json:"status"`
	StatusCode    string                  `json:"statusCode,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
	Protocol      string                  `json:"protocol,omitempty"`
	AccessKey     string                  `json:"accessKey,omitempty"`
	AuthorizedXML string                  `json:"authorizedXml,omitempty"`
	Log           []string                `json:"log,omitempty"`
	Record        *storage.EmissionRecord `json:"record,omitempty"`
}

func toEmissionResponse(res *emission.Result) emissionResponse {
	out := emissionResponse{
		Success:       res.Success,
		Status:        res.Status,
		StatusCode:    res.StatusCode,
		Reason:        res.Reason,
		Protocol:      res.Protocol,
		AuthorizedXML: string(res.AuthorizedXML),
		Log:           res.Log,
		Record:        res.Record,
	}
	if res.Record != nil {
		out.AccessKey = res.Record.AccessKey
	}
	return out
}

type cancelResponse struct {
	Accepted   bool   `json:"accepted"`
	StatusCode string `json:"statusCode,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
	XML        string `json:"xml,omitempty"`
}

type statusResponse struct {
	Available   bool   `json:"available"`
	StatusCode  string `json:"statusCode"`
	Reason      string `json:"reason"`
	State       string `json:"state,omitempty"`
	AverageTime string `json:"averageTime,omitempty"`
}
