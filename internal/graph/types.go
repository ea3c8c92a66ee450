package graph

import (
	"encoding/json"
	"time"
)

// siteResponse is the subset of a Microsoft Graph site resource this
// client needs.
type siteResponse struct {
	ID string `json:"id"`
}

// driveListResponse wraps a drives collection page.
type driveListResponse struct {
	Value []driveResponse `json:"value"`
}

type driveResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
}

// deltaResponse is one page of a /delta traversal.
type deltaResponse struct {
	Value          []driveItemResponse `json:"value"`
	NextLink       string              `json:"@odata.nextLink"`
	DeltaLink      string              `json:"@odata.deltaLink"`
}

type driveItemResponse struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	Size                 int64              `json:"size"`
	WebURL               string             `json:"webUrl"`
	CreatedDateTime      time.Time          `json:"createdDateTime"`
	LastModifiedDateTime time.Time          `json:"lastModifiedDateTime"`
	CreatedBy            *identitySet       `json:"createdBy"`
	LastModifiedBy       *identitySet       `json:"lastModifiedBy"`
	ParentReference      *parentReference   `json:"parentReference"`
	File                 *fileFacet         `json:"file"`
	Folder               json.RawMessage    `json:"folder"`
	Deleted              *deletedFacet      `json:"deleted"`
}

type identitySet struct {
	User *identity `json:"user"`
}

type identity struct {
	DisplayName string `json:"displayName"`
}

func (i *identitySet) displayName() string {
	if i == nil || i.User == nil {
		return ""
	}
	return i.User.DisplayName
}

type parentReference struct {
	Path string `json:"path"`
}

type fileFacet struct {
	Hashes *hashesFacet `json:"hashes"`
}

type hashesFacet struct {
	SHA256Hash   string `json:"sha256Hash"`
	QuickXorHash string `json:"quickXorHash"`
}

type deletedFacet struct {
	State string `json:"state"`
}
