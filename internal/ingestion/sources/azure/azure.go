// Package azure provides an ingestion adapter for Azure Emissions Impact Dashboard data.
// It fetches carbon emissions data from Azure Cost Management and the
// Azure Emissions Impact Dashboard API.
package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"github.com/paulwilltell/carbonplane/internal/ingestion"
	"github.com/paulwilltell/carbonplane/internal/ratelimit"
	"github.com/google/uuid"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds Azure adapter configuration.
type Config struct {
	// TenantID is the Azure AD tenant ID.
	TenantID string `json:"tenant_id"`

	// ClientID is the Azure AD application (client) ID.
	ClientID string `json:"client_id"`

	// ClientSecret is the Azure AD client secret.
	ClientSecret string `json:"-"` // Excluded from JSON

	// SubscriptionID is the Azure subscription ID.
	SubscriptionID string `json:"subscription_id"`

	// OrgID is the Carbonplane organization ID to associate activities with.
	OrgID string `json:"org_id"`

	// StartDate is the beginning of the date range to fetch (inclusive).
	StartDate time.Time `json:"start_date"`

	// EndDate is the end of the date range to fetch (exclusive).
	EndDate time.Time `json:"end_date"`

	// HTTPClient allows injecting a custom HTTP client for testing.
	HTTPClient *http.Client `json:"-"`

	// Limiter throttles outbound billing-API calls; nil disables throttling.
	Limiter *ratelimit.Limiter `json:"-"`

	// UseCostManagement supplements the emissions-dashboard poll with an
	// Azure Cost Management query grouped by service, so spend-based
	// Scope 3 purchased-goods activities (tier 1, spend-based) have a figure in
	// subscriptions without the Emissions Impact Dashboard enabled.
	UseCostManagement bool `json:"use_cost_management,omitempty"`
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("azure: tenant_id is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("azure: client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("azure: client_secret is required")
	}
	if c.SubscriptionID == "" {
		return fmt.Errorf("azure: subscription_id is required")
	}
	if c.OrgID == "" {
		return fmt.Errorf("azure: org_id is required")
	}
	return nil
}

// =============================================================================
// Azure API Response Types
// =============================================================================

// EmissionsResponse represents the Azure Emissions Impact Dashboard API response.
type EmissionsResponse struct {
	Value    []EmissionRecord `json:"value"`
	NextLink string           `json:"nextLink,omitempty"`
}

// EmissionRecord represents a single emissions record from Azure.
type EmissionRecord struct {
	ID                     string    `json:"id"`
	SubscriptionID         string    `json:"subscriptionId"`
	ResourceGroup          string    `json:"resourceGroup"`
	ResourceType           string    `json:"resourceType"`
	ResourceName           string    `json:"resourceName"`
	Region                 string    `json:"region"`
	ServiceName            string    `json:"serviceName"`
	MeterCategory          string    `json:"meterCategory"`
	MeterSubcategory       string    `json:"meterSubcategory"`
	Date                   time.Time `json:"date"`
	Scope1CO2e             float64   `json:"scope1CO2e"`
	Scope2CO2e             float64   `json:"scope2CO2e"`
	Scope3CO2e             float64   `json:"scope3CO2e"`
	TotalCO2e              float64   `json:"totalCO2e"`
	EnergyConsumptionKWh   float64   `json:"energyConsumptionKWh"`
	CarbonIntensity        float64   `json:"carbonIntensity"` // gCO2e/kWh
	RenewableEnergyPercent float64   `json:"renewableEnergyPercent"`
	Currency               string    `json:"currency"`
	Cost                   float64   `json:"cost"`
}

// OAuthTokenResponse represents the Azure AD token response.
type OAuthTokenResponse struct {
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	AccessToken string `json:"access_token"`
}

// =============================================================================
// Adapter Implementation
// =============================================================================

// Adapter ingests carbon emissions data from Azure.
type Adapter struct {
	config      Config
	client      *http.Client
	accessToken string
	tokenExpiry time.Time
	cred        *azidentity.ClientSecretCredential
	limiter     *ratelimit.Limiter
}

// NewAdapter creates a new Azure ingestion adapter.
func NewAdapter(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: failed to create credential: %w", err)
	}

	return &Adapter{
		config:  cfg,
		client:  client,
		cred:    cred,
		limiter: cfg.Limiter,
	}, nil
}

// Ingest fetches carbon emissions data from Azure and returns activities.
func (a *Adapter) Ingest(ctx context.Context) ([]ingestion.Activity, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx, "azure:"+a.config.OrgID); err != nil {
			return nil, fmt.Errorf("azure: rate limit wait: %w", err)
		}
	}

	var records []EmissionRecord
	err := ingestion.WithRetry(ctx, 3, 2*time.Second, func() error {
		if err := a.ensureAuthenticated(ctx); err != nil {
			return err
		}
		var fetchErr error
		records, fetchErr = a.fetchEmissionsData(ctx)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("azure: failed to fetch emissions: %w", err)
	}
	activities := a.convertToActivities(records)

	if a.config.UseCostManagement {
		spend, err := a.FetchCostManagementUsage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure: failed to fetch cost management usage: %w", err)
		}
		activities = append(activities, a.convertSpendToActivities(spend)...)
	}

	return activities, nil
}

// ensureAuthenticated obtains or refreshes the Azure AD access token.
func (a *Adapter) ensureAuthenticated(ctx context.Context) error {
	// Check if we have a valid token
	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return nil
	}

	if a.cred == nil {
		return fmt.Errorf("azure: credential not configured")
	}

	token, err := a.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{"https://management.azure.com/.default"},
	})
	if err != nil {
		return fmt.Errorf("azure: failed to acquire token: %w", err)
	}

	a.accessToken = token.Token
	a.tokenExpiry = token.ExpiresOn

	return nil
}

// fetchEmissionsData retrieves emissions data from Azure Emissions Impact Dashboard.
func (a *Adapter) fetchEmissionsData(ctx context.Context) ([]EmissionRecord, error) {
	// Note: The Emissions Impact Dashboard API endpoint
	// In production, this would be the actual Microsoft Sustainability API
	base := fmt.Sprintf(
		"https://management.azure.com/subscriptions/%s/providers/Microsoft.Carbon/carbonEmissions?api-version=2023-04-01",
		a.config.SubscriptionID,
	)

	startDate := a.config.StartDate.Format("2006-01-02")
	endDate := a.config.EndDate.Format("2006-01-02")
	firstURL := fmt.Sprintf("%s&startDate=%s&endDate=%s", base, startDate, endDate)

	allRecords := make([]EmissionRecord, 0)
	seen := make(map[string]bool)
	nextURL := firstURL
	maxPages := 100

	for page := 0; page < maxPages && nextURL != ""; page++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if seen[nextURL] {
			return nil, fmt.Errorf("azure: detected pagination loop on %s", nextURL)
		}
		seen[nextURL] = true

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, nextURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+a.accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, err
		}
		func() {
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				err = fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
				return
			}

			var result EmissionsResponse
			if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil {
				err = fmt.Errorf("failed to decode response: %w", decodeErr)
				return
			}

			allRecords = append(allRecords, result.Value...)
			nextURL = strings.TrimSpace(result.NextLink)
		}()
		if err != nil {
			return nil, err
		}
	}

	if nextURL != "" {
		return nil, fmt.Errorf("azure: pagination exceeded %d pages", maxPages)
	}

	return allRecords, nil
}

// convertToActivities transforms Azure emissions data into Carbonplane activities.
func (a *Adapter) convertToActivities(records []EmissionRecord) []ingestion.Activity {
	activities := make([]ingestion.Activity, 0)
	now := time.Now().UTC()

	for _, record := range records {
		// Create activities for each scope
		periodStart := record.Date
		periodEnd := record.Date.AddDate(0, 0, 1) // Daily granularity

		// Map Azure region to Carbonplane location code
		location := mapAzureRegion(record.Region)

		// Scope 1 emissions (direct)
		if record.Scope1CO2e > 0 {
			activities = append(activities, ingestion.Activity{
				ID:          uuid.NewString(),
				Source:      "azure_emissions",
				Category:    "cloud_compute_scope1",
				Location:    location,
				PeriodStart: periodStart,
				PeriodEnd:   periodEnd,
				Quantity:    record.Scope1CO2e / 1000, // Convert kg to tonnes
				Unit:        "tonne",
				OrgID:       a.config.OrgID,
				Metadata: map[string]string{
					"azure_subscription_id": record.SubscriptionID,
					"azure_resource_group":  record.ResourceGroup,
					"azure_resource_type":   record.ResourceType,
					"azure_service_name":    record.ServiceName,
					"azure_region":          record.Region,
					"emission_scope":        "scope1",
					"renewable_energy_pct":  fmt.Sprintf("%.1f", record.RenewableEnergyPercent),
					"data_source":           "azure_emissions_dashboard",
				},
				CreatedAt:   now,
				DataQuality: "measured",
				ExternalID:  fmt.Sprintf("azure_%s_scope1", record.ID),
			})
		}

		// Scope 2 emissions (indirect - electricity)
		if record.Scope2CO2e > 0 {
			activities = append(activities, ingestion.Activity{
				ID:          uuid.NewString(),
				Source:      "azure_emissions",
				Category:    "cloud_compute_scope2",
				Location:    location,
				PeriodStart: periodStart,
				PeriodEnd:   periodEnd,
				Quantity:    record.Scope2CO2e / 1000, // Convert kg to tonnes
				Unit:        "tonne",
				OrgID:       a.config.OrgID,
				Metadata: map[string]string{
					"azure_subscription_id":  record.SubscriptionID,
					"azure_resource_group":   record.ResourceGroup,
					"azure_resource_type":    record.ResourceType,
					"azure_service_name":     record.ServiceName,
					"azure_region":           record.Region,
					"emission_scope":         "scope2",
					"energy_consumption_kwh": fmt.Sprintf("%.2f", record.EnergyConsumptionKWh),
					"carbon_intensity":       fmt.Sprintf("%.2f", record.CarbonIntensity),
					"renewable_energy_pct":   fmt.Sprintf("%.1f", record.RenewableEnergyPercent),
					"data_source":            "azure_emissions_dashboard",
				},
				CreatedAt:   now,
				DataQuality: "measured",
				ExternalID:  fmt.Sprintf("azure_%s_scope2", record.ID),
			})
		}

		// Scope 3 emissions (value chain)
		if record.Scope3CO2e > 0 {
			activities = append(activities, ingestion.Activity{
				ID:          uuid.NewString(),
				Source:      "azure_emissions",
				Category:    "cloud_compute_scope3",
				Location:    location,
				PeriodStart: periodStart,
				PeriodEnd:   periodEnd,
				Quantity:    record.Scope3CO2e / 1000, // Convert kg to tonnes
				Unit:        "tonne",
				OrgID:       a.config.OrgID,
				Metadata: map[string]string{
					"azure_subscription_id": record.SubscriptionID,
					"azure_resource_group":  record.ResourceGroup,
					"azure_resource_type":   record.ResourceType,
					"azure_service_name":    record.ServiceName,
					"azure_region":          record.Region,
					"emission_scope":        "scope3",
					"data_source":           "azure_emissions_dashboard",
				},
				CreatedAt:   now,
				DataQuality: "measured",
				ExternalID:  fmt.Sprintf("azure_%s_scope3", record.ID),
			})
		}
	}

	return activities
}

// mapAzureRegion converts Azure region codes to Carbonplane location codes.
func mapAzureRegion(azureRegion string) string {
	regionMap := map[string]string{
		"eastus":             "US-EAST",
		"eastus2":            "US-EAST",
		"westus":             "US-WEST",
		"westus2":            "US-WEST",
		"westus3":            "US-WEST",
		"centralus":          "US-CENTRAL",
		"northcentralus":     "US-CENTRAL",
		"southcentralus":     "US-CENTRAL",
		"westeurope":         "EU-WEST",
		"northeurope":        "EU-WEST",
		"uksouth":            "EU-WEST",
		"ukwest":             "EU-WEST",
		"germanywestcentral": "EU-CENTRAL",
		"francecentral":      "EU-WEST",
		"switzerlandnorth":   "EU-CENTRAL",
		"norwayeast":         "EU-NORTH",
		"swedencentral":      "EU-NORTH",
		"australiaeast":      "ASIA-PACIFIC",
		"australiasoutheast": "ASIA-PACIFIC",
		"japaneast":          "ASIA-PACIFIC",
		"japanwest":          "ASIA-PACIFIC",
		"koreacentral":       "ASIA-PACIFIC",
		"southeastasia":      "ASIA-PACIFIC",
		"eastasia":           "ASIA-PACIFIC",
		"centralindia":       "ASIA-PACIFIC",
		"southindia":         "ASIA-PACIFIC",
		"brazilsouth":        "LATAM",
		"canadacentral":      "US-EAST",
		"canadaeast":         "US-EAST",
		"uaenorth":           "MENA",
		"southafricanorth":   "AFRICA",
	}

	if location, ok := regionMap[strings.ToLower(azureRegion)]; ok {
		return location
	}
	return "GLOBAL"
}

// =============================================================================
// Cost Management Integration
// =============================================================================

// ServiceSpend is one Azure service's cost for the adapter's configured
// date range, used to feed spend-based Scope 3 tier-1 calculations.
type ServiceSpend struct {
	ServiceName string
	Location    string
	AmountUSD   float64
}

// FetchCostManagementUsage queries Azure Cost Management's QueryClient for
// usage cost grouped by service name and resource location over the
// adapter's configured date range.
func (a *Adapter) FetchCostManagementUsage(ctx context.Context) ([]ServiceSpend, error) {
	if a.cred == nil {
		return nil, fmt.Errorf("azure: credential not configured")
	}

	client, err := armcostmanagement.NewQueryClient(a.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: create cost management client: %w", err)
	}

	scope := fmt.Sprintf("subscriptions/%s", a.config.SubscriptionID)
	granularity := armcostmanagement.GranularityTypeDaily
	aggFunc := armcostmanagement.FunctionTypeSum
	dimDimension := armcostmanagement.QueryColumnTypeDimension

	result, err := client.Usage(ctx, scope, armcostmanagement.QueryDefinition{
		Type:      to.Ptr(armcostmanagement.ExportTypeUsage),
		Timeframe: to.Ptr(armcostmanagement.TimeframeTypeCustom),
		TimePeriod: &armcostmanagement.QueryTimePeriod{
			From: to.Ptr(a.config.StartDate),
			To:   to.Ptr(a.config.EndDate),
		},
		Dataset: &armcostmanagement.QueryDataset{
			Granularity: &granularity,
			Aggregation: map[string]*armcostmanagement.QueryAggregation{
				"totalCost": {Name: to.Ptr("Cost"), Function: &aggFunc},
			},
			Grouping: []*armcostmanagement.QueryGrouping{
				{Type: &dimDimension, Name: to.Ptr("ServiceName")},
				{Type: &dimDimension, Name: to.Ptr("ResourceLocation")},
			},
		},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: cost management usage query: %w", err)
	}

	return parseCostManagementRows(result.Properties), nil
}

// parseCostManagementRows walks the generic column/row shape Cost
// Management returns (column order matches the requested aggregation and
// grouping) into typed ServiceSpend entries.
func parseCostManagementRows(props *armcostmanagement.QueryProperties) []ServiceSpend {
	if props == nil || len(props.Columns) == 0 {
		return nil
	}
	costIdx, serviceIdx, locationIdx := -1, -1, -1
	for i, col := range props.Columns {
		if col == nil || col.Name == nil {
			continue
		}
		switch *col.Name {
		case "Cost", "totalCost":
			costIdx = i
		case "ServiceName":
			serviceIdx = i
		case "ResourceLocation":
			locationIdx = i
		}
	}
	if costIdx == -1 {
		return nil
	}

	spend := make([]ServiceSpend, 0, len(props.Rows))
	for _, row := range props.Rows {
		if costIdx >= len(row) {
			continue
		}
		amount, ok := row[costIdx].(float64)
		if !ok {
			continue
		}
		s := ServiceSpend{AmountUSD: amount}
		if serviceIdx >= 0 && serviceIdx < len(row) {
			if v, ok := row[serviceIdx].(string); ok {
				s.ServiceName = v
			}
		}
		if locationIdx >= 0 && locationIdx < len(row) {
			if v, ok := row[locationIdx].(string); ok {
				s.Location = v
			}
		}
		spend = append(spend, s)
	}
	return spend
}

// convertSpendToActivities transforms per-service spend into spend-based
// activities for Scope 3 purchased-goods tier-1 calculation.
func (a *Adapter) convertSpendToActivities(spend []ServiceSpend) []ingestion.Activity {
	activities := make([]ingestion.Activity, 0, len(spend))
	now := time.Now().UTC()
	for _, s := range spend {
		location := mapAzureRegion(s.Location)
		activities = append(activities, ingestion.Activity{
			ID:          uuid.NewString(),
			Source:      "azure_cost_management",
			Category:    "cloud_spend",
			Location:    location,
			PeriodStart: a.config.StartDate,
			PeriodEnd:   a.config.EndDate,
			Quantity:    s.AmountUSD,
			Unit:        "usd",
			OrgID:       a.config.OrgID,
			Metadata: map[string]string{
				"azure_service_name": s.ServiceName,
				"data_source":        "azure_cost_management",
			},
			CreatedAt:   now,
			DataQuality: "spend_based",
			ExternalID:  fmt.Sprintf("%s:%s:%s", s.ServiceName, s.Location, a.config.StartDate.Format("2006-01")),
		})
	}
	return activities
}
