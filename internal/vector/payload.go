package vector

import (
	"strconv"
	"strings"

	"github.com/hyperjump/medsage/internal/models"
	"github.com/qdrant/go-client/qdrant"
)

// payloadToValues converts a payload to Qdrant values, skipping empty fields. Strings are
// forced to valid UTF-8 since protobuf refuses to encode anything else.
func payloadToValues(p models.Payload) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, 9)
	put := func(key, v string) {
		if v != "" {
			out[key] = qdrant.NewValueString(strings.ToValidUTF8(v, "\uFFFD"))
		}
	}
	out[models.PayloadText] = qdrant.NewValueString(strings.ToValidUTF8(p.Text, "\uFFFD"))
	put(models.PayloadFile, p.File)
	put(models.PayloadSource, p.Source)
	put(models.PayloadType, p.Type)
	put(models.PayloadDomain, p.Domain)
	put(models.PayloadQuestion, p.Question)
	put(models.PayloadResponse, p.Response)
	put(models.PayloadComplexCoT, p.ComplexCoT)
	if p.ChunkIdx != nil {
		out[models.PayloadChunkIdx] = qdrant.NewValueInt(int64(*p.ChunkIdx))
	}
	return out
}

// valuesToPayload is the inverse of payloadToValues. Unknown keys are ignored.
func valuesToPayload(values map[string]*qdrant.Value) models.Payload {
	var p models.Payload
	str := func(key string) string {
		if v, ok := values[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	p.Text = str(models.PayloadText)
	p.File = str(models.PayloadFile)
	p.Source = str(models.PayloadSource)
	p.Type = str(models.PayloadType)
	p.Domain = str(models.PayloadDomain)
	p.Question = str(models.PayloadQuestion)
	p.Response = str(models.PayloadResponse)
	p.ComplexCoT = str(models.PayloadComplexCoT)
	if v, ok := values[models.PayloadChunkIdx]; ok {
		idx := int(v.GetIntegerValue())
		p.ChunkIdx = &idx
	}
	return p
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}
