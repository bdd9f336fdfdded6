package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const secretManifest = `apiVersion: v1
kind: Secret
metadata:
  name: __SECRET_NAME__
  namespace: cattle-system
stringData:
  username: __REGISTRY_USERNAME__
  password: __REGISTRY_PASSWORD__
`

func TestRenderReplace(t *testing.T) {
	context := Context{
		"__SECRET_NAME__":       Replace("registry-auth"),
		"__REGISTRY_USERNAME__": Replace("admin"),
		"__REGISTRY_PASSWORD__": Replace("sekret"),
	}
	rendered := Render(secretManifest, context)
	expected := `apiVersion: v1
kind: Secret
metadata:
  name: registry-auth
  namespace: cattle-system
stringData:
  username: admin
  password: sekret
`
	assert.Equal(t, expected, rendered)
}

func TestRenderDeleteLine(t *testing.T) {
	doc := "name: rancher.example.com\n__TOKEN__\n"
	rendered := Render(doc, Context{"__TOKEN__": Delete()})
	assert.Equal(t, "name: rancher.example.com\n", rendered)
}

func TestRenderDeleteRemovesEveryMatchingLine(t *testing.T) {
	doc := `a: 1
__OPT__: x
b: 2
extra: __OPT__
c: 3
`
	rendered := Render(doc, Context{"__OPT__": Delete()})
	assert.Equal(t, "a: 1\nb: 2\nc: 3\n", rendered)
	assert.Equal(t, 5-2, len(strings.Split(strings.TrimSuffix(rendered, "\n"), "\n")))
}

func TestRenderMultiLineBlockKeepsIndent(t *testing.T) {
	doc := `spec:
  values:
    __REGISTRY_BLOCK__
`
	block := "systemDefaultRegistry: registry.example.com\nuseBundledSystemChart: true"
	rendered := Render(doc, Context{"__REGISTRY_BLOCK__": Replace(block)})
	expected := `spec:
  values:
    systemDefaultRegistry: registry.example.com
    useBundledSystemChart: true
`
	assert.Equal(t, expected, rendered)
}

func TestRenderUnknownTokenPassesThrough(t *testing.T) {
	doc := "image: __IMAGE__\n"
	rendered := Render(doc, Context{})
	assert.Equal(t, doc, rendered)
}

func TestRenderIdempotent(t *testing.T) {
	context := Context{
		"__SECRET_NAME__":       Replace("registry-auth"),
		"__REGISTRY_USERNAME__": Delete(),
		"__REGISTRY_PASSWORD__": Delete(),
	}
	once := Render(secretManifest, context)
	twice := Render(once, context)
	assert.Equal(t, once, twice)
}

func TestRenderStrictLeftoverToken(t *testing.T) {
	doc := "hostname: __HOSTNAME__\n"
	_, err := RenderStrict(doc, Context{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "__HOSTNAME__")
}

func TestRenderStrictAllResolved(t *testing.T) {
	doc := "hostname: __HOSTNAME__\n__CA_LINE__\n"
	rendered, err := RenderStrict(doc, Context{
		"__HOSTNAME__": Replace("rancher.example.com"),
		"__CA_LINE__":  Delete(),
	})
	assert.Nil(t, err)
	assert.Equal(t, "hostname: rancher.example.com\n", rendered)
}

func TestRenderStrictAcceptsTokenShapedReplacementValue(t *testing.T) {
	// a replacement value that happens to look like a placeholder (say a
	// generated password) is data, not an unresolved token
	doc := "bootstrapPassword: __BOOTSTRAP_PASSWORD__\n"
	rendered, err := RenderStrict(doc, Context{
		"__BOOTSTRAP_PASSWORD__": Replace("__SEKRET_42__"),
	})
	assert.Nil(t, err)
	assert.Equal(t, "bootstrapPassword: __SEKRET_42__\n", rendered)
}

func TestRenderNoPartialMatch(t *testing.T) {
	// lowercase is not valid token syntax and must never be substituted
	doc := "a: __not_a_token__\n"
	rendered := Render(doc, Context{"__NOT_A_TOKEN__": Replace("x")})
	assert.Equal(t, doc, rendered)
}

func TestContextMerge(t *testing.T) {
	base := Context{"__A__": Replace("1"), "__B__": Delete()}
	merged := base.Merge(Context{"__B__": Replace("2")}, Context{"__C__": Delete()})
	assert.Equal(t, "1", merged["__A__"].Value())
	assert.False(t, merged["__B__"].IsDelete())
	assert.True(t, merged["__C__"].IsDelete())
	// base left untouched
	assert.True(t, base["__B__"].IsDelete())
}

func TestContextValidate(t *testing.T) {
	assert.Nil(t, Context{"__OK_1__": Delete()}.Validate())
	assert.Error(t, Context{"__bad__": Delete()}.Validate())
	assert.Error(t, Context{"PREFIX__X__": Delete()}.Validate())
}
