package gridline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridline-ai/gridline-go/api"
	"github.com/gridline-ai/gridline-go/internal/httputil"
	"github.com/gridline-ai/gridline-go/label"
	"github.com/gridline-ai/gridline-go/ontology"
)

func testClient(t *testing.T, replay *httputil.ReplayClient) *Client {
	t.Helper()
	p := &Profile{Endpoint: "https://api.gridline.example", APIKey: "test-key"}
	c, err := NewClient(p, WithHTTPClient(replay))
	require.NoError(t, err)
	return c
}

func clientOntology(t *testing.T) *ontology.Structure {
	t.Helper()
	structure, err := ontology.NewStructure([]*ontology.Object{
		{
			UID:             "1",
			Name:            "Car",
			Color:           "#D33115",
			Shape:           ontology.ShapeBoundingBox,
			FeatureNodeHash: "obj-car",
		},
	}, nil)
	require.NoError(t, err)
	return structure
}

func TestClientSendsAuthAndQuery(t *testing.T) {
	replay := httputil.NewReplayClient().Enqueue(http.StatusOK, []byte(`{"results":[],"page":{}}`))
	c := testClient(t, replay)

	_, err := c.ListLabelRows(context.Background(), api.ListLabelRowsParams{
		DatasetHash: "ds-1",
		Page:        api.PageParams{PageSize: 10},
	})
	require.NoError(t, err)

	req := replay.Request(0)
	require.NotNil(t, req)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/v1/label-rows", req.URL.Path)
	assert.Equal(t, "ds-1", req.URL.Query().Get("dataset_hash"))
	assert.Equal(t, "10", req.URL.Query().Get("page_size"))
	assert.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "gridline-go/dev", req.Header.Get("User-Agent"))
}

func TestListLabelRows(t *testing.T) {
	replay := httputil.NewReplayClient().Enqueue(http.StatusOK, []byte(`{
		"results": [{"label_hash": "lh-1", "data_hash": "dh-1", "label_status": "LABELLED"}],
		"page": {"next_cursor": "c2", "has_more": true}
	}`))
	c := testClient(t, replay)

	page, err := c.ListLabelRows(context.Background(), api.ListLabelRowsParams{})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "lh-1", page.Rows[0].LabelHash)
	assert.Equal(t, "c2", page.Page.NextCursor)
	assert.True(t, page.Page.HasMore)
}

func TestGetLabelRow(t *testing.T) {
	replay := httputil.NewReplayClient().Enqueue(http.StatusOK, []byte(`{
		"label_hash": "lh-1",
		"data_hash": "dh-1",
		"data_title": "clip",
		"data_type": "video",
		"label_status": "LABELLED",
		"spaces": {"vid-1": {"space_type": "video", "number_of_frames": 10, "width": 640, "height": 480, "fps": 25}}
	}`))
	c := testClient(t, replay)

	row, err := c.GetLabelRow(context.Background(), "lh-1", clientOntology(t))
	require.NoError(t, err)
	assert.Equal(t, "lh-1", row.LabelHash())
	assert.Equal(t, label.StatusLabelled, row.Status())
	assert.Len(t, row.Spaces(), 1)

	req := replay.Request(0)
	require.NotNil(t, req)
	assert.Equal(t, "/v1/label-rows/lh-1", req.URL.Path)

	_, err = c.GetLabelRow(context.Background(), "", clientOntology(t))
	require.Error(t, err)
}

func TestSaveLabelRowPostsEncodedBytes(t *testing.T) {
	replay := httputil.NewReplayClient().
		Enqueue(http.StatusOK, []byte(`{"label_hash": "lh-1", "label_status": "LABEL_IN_PROGRESS"}`))
	c := testClient(t, replay)

	row := label.NewLabelRow(label.RowConfig{
		LabelHash: "lh-1",
		DataHash:  "dh-1",
		DataTitle: "clip",
		DataType:  label.DataTypeVideo,
		Ontology:  clientOntology(t),
	})
	encoded, err := row.Encode()
	require.NoError(t, err)

	result, err := c.SaveLabelRow(context.Background(), row)
	require.NoError(t, err)
	assert.Equal(t, "lh-1", result.LabelHash)
	assert.Equal(t, "LABEL_IN_PROGRESS", result.LabelStatus)

	req := replay.Request(0)
	require.NotNil(t, req)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/v1/label-rows/lh-1", req.URL.Path)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, encoded, body, "posted payload must be the encoded dict, byte for byte")
}

func TestClientAPIError(t *testing.T) {
	replay := httputil.NewReplayClient().
		Enqueue(http.StatusNotFound, []byte(`{"error": "row not found"}`))
	c := testClient(t, replay)

	_, err := c.GetLabelRow(context.Background(), "lh-missing", clientOntology(t))
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "v1/label-rows/lh-missing", apiErr.Path)
	assert.Contains(t, apiErr.Body, "row not found")
}

func TestGetSceneDocumentAndLoader(t *testing.T) {
	sceneDoc := `{
		"type": "scene",
		"streams": {
			"lidar_top": {
				"entityType": "point_cloud",
				"events": [{"url": "https://assets.gridline.example/sweep-0.pcd"}]
			}
		}
	}`
	pcdBody := "VERSION .7\n" +
		"FIELDS x y z\n" +
		"SIZE 4 4 4\n" +
		"TYPE F F F\n" +
		"COUNT 1 1 1\n" +
		"WIDTH 1\n" +
		"HEIGHT 1\n" +
		"VIEWPOINT 0 0 0 1 0 0 0\n" +
		"POINTS 1\n" +
		"DATA ascii\n" +
		"1.5 -2.0 0.25\n"

	replay := httputil.NewReplayClient().
		Enqueue(http.StatusOK, []byte(sceneDoc)).
		Enqueue(http.StatusOK, []byte(pcdBody))
	c := testClient(t, replay)

	s, err := c.GetSceneDocument(context.Background(), "dh-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"lidar_top"}, s.StreamIDs())

	cloud, err := c.SceneLoader(s).LoadPointCloud(context.Background(), "lidar_top", 0)
	require.NoError(t, err)
	require.Equal(t, 1, cloud.NumPoints())
	assert.Equal(t, [3]float64{1.5, -2.0, 0.25}, cloud.Points[0])

	// The asset fetch hits the signed URL directly, without API auth.
	fetch := replay.Request(1)
	require.NotNil(t, fetch)
	assert.Equal(t, "assets.gridline.example", fetch.URL.Host)
	assert.Empty(t, fetch.Header.Get("Authorization"))
}
