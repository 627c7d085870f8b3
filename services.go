package semtable

import (
	"context"
	"fmt"

	"github.com/ghetzel/go-stockutil/log"
	"github.com/ghetzel/go-stockutil/sliceutil"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// serviceDescriptor is a reconciliator or extender as returned by the
// backend's list endpoints.
type serviceDescriptor struct {
	ID          string      `json:"id"`
	RelativeURL string      `json:"relativeUrl"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	FormParams  []formParam `json:"formParams,omitempty"`
}

type formParam struct {
	ID          string                   `json:"id"`
	InputType   string                   `json:"inputType"`
	Rules       []string                 `json:"rules,omitempty"`
	Description string                   `json:"description,omitempty"`
	Label       string                   `json:"label,omitempty"`
	InfoText    string                   `json:"infoText,omitempty"`
	Options     []map[string]interface{} `json:"options,omitempty"`
}

func (self formParam) required() bool {
	return sliceutil.ContainsString(self.Rules, `required`)
}

// ParamInfo describes one parameter accepted by a service.
type ParamInfo struct {
	Name        string
	Type        string
	Mandatory   bool
	Description string
	Label       string
	InfoText    string
}

// ServiceParameters groups a service's parameters by whether they are required.
type ServiceParameters struct {
	Mandatory []ParamInfo
	Optional  []ParamInfo
}

func (self *Client) listServices(ctx context.Context, endpoint string) ([]serviceDescriptor, error) {
	var services []serviceDescriptor

	if err := self.getJSON(ctx, endpoint, nil, &services); err != nil {
		return nil, err
	}

	return services, nil
}

// Drops incomplete descriptors and flattens the rest into an
// id/relativeUrl/name dataframe.
func serviceFrame(services []serviceDescriptor) dataframe.DataFrame {
	var ids, urls, names []string

	for _, svc := range services {
		if svc.ID == `` || svc.Name == `` {
			log.Debugf("skipping service descriptor with missing id or name: %+v", svc)
			continue
		}

		ids = append(ids, svc.ID)
		urls = append(urls, svc.RelativeURL)
		names = append(names, svc.Name)
	}

	if len(ids) == 0 {
		return dataframe.DataFrame{}
	}

	return dataframe.New(
		series.New(ids, series.String, `id`),
		series.New(urls, series.String, `relativeUrl`),
		series.New(names, series.String, `name`),
	)
}

func serviceParameters(services []serviceDescriptor, serviceID string, mandatory []ParamInfo) (*ServiceParameters, error) {
	for _, svc := range services {
		if svc.ID != serviceID {
			continue
		}

		var params = &ServiceParameters{
			Mandatory: mandatory,
		}

		for _, param := range svc.FormParams {
			params.Optional = append(params.Optional, ParamInfo{
				Name:        param.ID,
				Type:        param.InputType,
				Mandatory:   param.required(),
				Description: param.Description,
				Label:       param.Label,
				InfoText:    param.InfoText,
			})
		}

		return params, nil
	}

	return nil, fmt.Errorf("no such service %q", serviceID)
}
