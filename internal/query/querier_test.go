package query

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildLabelTotalsQuery_NoFilters(t *testing.T) {
	q, args := buildLabelTotalsQuery("vpc_flow_tagged", TotalsRequest{})

	assert.Contains(t, q, "FROM vpc_flow_tagged")
	assert.Contains(t, q, "GROUP BY DstTag")
	assert.NotContains(t, q, "WHERE")
	assert.NotContains(t, q, "LIMIT")
	assert.Empty(t, args)
}

func TestBuildLabelTotalsQuery_Filters(t *testing.T) {
	since := time.Unix(1700000000, 0)
	q, args := buildLabelTotalsQuery("flows", TotalsRequest{InterfaceID: "eni-0abc", Tag: "S3", Since: since, Limit: 5})

	assert.Contains(t, q, " WHERE InterfaceID = ? AND (SrcTag = ? OR DstTag = ?) AND LoadedAt >= ?")
	assert.True(t, strings.HasSuffix(q, " LIMIT 5"))
	assert.Equal(t, []any{"eni-0abc", "S3", "S3", since}, args)
	assert.Equal(t, strings.Count(q, "?"), len(args))
}

func TestBuildTopTalkersQuery_DefaultLimit(t *testing.T) {
	q, args := buildTopTalkersQuery("flows", TotalsRequest{Tag: "internet"})

	assert.Contains(t, q, "GROUP BY SrcAddr, DstAddr")
	assert.Contains(t, q, "ORDER BY TotalBytes DESC")
	assert.True(t, strings.HasSuffix(q, " LIMIT 20"))
	assert.Equal(t, []any{"internet", "internet"}, args)
}
