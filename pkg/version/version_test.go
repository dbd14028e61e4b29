package version

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	// Packages
	assert "github.com/stretchr/testify/assert"
)

func Test_Version_Tag(t *testing.T) {
	assert := assert.New(t)
	tag, branch := GitTag, GitBranch
	t.Cleanup(func() { GitTag, GitBranch = tag, branch })

	GitTag, GitBranch = "v1.2.3", "main"
	assert.Equal("v1.2.3", Version())
	GitTag = ""
	assert.Equal("main", Version())
	GitBranch = ""
	assert.NotEmpty(Version())
}

func Test_Version_JSON(t *testing.T) {
	assert := assert.New(t)
	var info Info
	if assert.NoError(json.Unmarshal(JSON("transfer"), &info)) {
		assert.Equal("transfer", info.Name)
		assert.Equal(runtime.Version(), info.Compiler)
		assert.Equal(runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	}
}

func Test_Version_UserAgent(t *testing.T) {
	assert := assert.New(t)
	ua := UserAgent("transfer")
	assert.True(strings.HasPrefix(ua, "transfer/"))
	assert.True(strings.HasSuffix(ua, "("+runtime.GOOS+"/"+runtime.GOARCH+")"))
}
