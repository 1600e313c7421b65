package adsapi

import "fmt"

// Mutate entities understood by the client.
const (
	EntityCampaignCriteria = "campaignCriteria"
	EntityAdGroupCriteria  = "adGroupCriteria"
)

// Mutate operation kinds.
const (
	OpCreate = "create"
	OpRemove = "remove"
)

// Operation is a single {entity, operation, resource} mutate triple.
// For OpRemove, Resource is the resource name string to remove.
type Operation struct {
	Entity    string
	Operation string
	Resource  any
}

// MutateResult reports the resources affected by a mutate call. Failures
// lists per-operation errors reported under partial-failure mode.
type MutateResult struct {
	ResourceNames []string
	Failures      []string
}

// CampaignCriterion is the payload for campaign-level criteria.
type CampaignCriterion struct {
	Campaign string       `json:"campaign"`
	Negative bool         `json:"negative,omitempty"`
	IPBlock  *IPBlockInfo `json:"ipBlock,omitempty"`
}

// IPBlockInfo excludes a single IP address.
type IPBlockInfo struct {
	IPAddress string `json:"ipAddress"`
}

// AdGroupCriterion is the payload for ad-group-level criteria.
type AdGroupCriterion struct {
	AdGroup  string       `json:"adGroup"`
	Negative bool         `json:"negative,omitempty"`
	Keyword  *KeywordInfo `json:"keyword,omitempty"`
}

// KeywordInfo describes a keyword criterion.
type KeywordInfo struct {
	Text      string `json:"text"`
	MatchType string `json:"matchType"`
}

// CampaignResource returns the resource name of a campaign.
func CampaignResource(customerID, campaignID string) string {
	return fmt.Sprintf("customers/%s/campaigns/%s", customerID, campaignID)
}

// AdGroupResource returns the resource name of an ad group.
func AdGroupResource(customerID, adGroupID string) string {
	return fmt.Sprintf("customers/%s/adGroups/%s", customerID, adGroupID)
}

// BlockIP builds an operation excluding ip from campaignID.
func BlockIP(customerID, campaignID, ip string) Operation {
	return Operation{
		Entity:    EntityCampaignCriteria,
		Operation: OpCreate,
		Resource: CampaignCriterion{
			Campaign: CampaignResource(customerID, campaignID),
			Negative: true,
			IPBlock:  &IPBlockInfo{IPAddress: ip},
		},
	}
}

// NegativeBroadKeyword builds an operation adding a negative broad-match
// keyword to adGroupID.
func NegativeBroadKeyword(customerID, adGroupID, text string) Operation {
	return Operation{
		Entity:    EntityAdGroupCriteria,
		Operation: OpCreate,
		Resource: AdGroupCriterion{
			AdGroup:  AdGroupResource(customerID, adGroupID),
			Negative: true,
			Keyword:  &KeywordInfo{Text: text, MatchType: "BROAD"},
		},
	}
}
