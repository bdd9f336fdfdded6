package common

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
	"helm.sh/helm/v3/pkg/strvals"
)

// GenerateValues merges default chart values with user supplied --set style
// overrides, overrides winning.
func GenerateValues(setValues []string, defaultValues map[string]string) (map[string]interface{}, error) {
	values := []string{}
	for key, value := range defaultValues {
		values = append(values, fmt.Sprintf("%s=%s", key, value))
	}
	values = append(values, setValues...)
	return mergeValues(values)
}

// AssembleManifest executes a sprig-enabled template with the given values.
func AssembleManifest(values map[string]interface{}, manifest string, templateFunc template.FuncMap) ([]byte, error) {
	t := template.New("manifest").Funcs(sprig.TxtFuncMap())
	if templateFunc != nil {
		t = t.Funcs(templateFunc)
	}
	t, err := t.Parse(manifest)
	if err != nil {
		return nil, err
	}
	var resultContent bytes.Buffer
	if err := t.Execute(&resultContent, values); err != nil {
		return nil, err
	}
	return resultContent.Bytes(), nil
}

func mergeValues(values []string) (map[string]interface{}, error) {
	base := map[string]interface{}{}

	for _, value := range values {
		if err := strvals.ParseInto(value, base); err != nil {
			return nil, errors.Wrap(err, "failed parsing --set data")
		}
	}
	return base, nil
}
