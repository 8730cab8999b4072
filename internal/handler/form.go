package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/hitoshi/storefront/internal/media"
	"github.com/hitoshi/storefront/internal/model"
)

// maxMultipartSize は画像1枚とフォーム値を合わせたリクエストの上限。
const maxMultipartSize = media.MaxImageSize + 1<<20

// formFields はJSONまたはmultipart/form-dataのリクエストから取り出した値。
// 管理画面とプロフィール更新は同じエンドポイントで両方の形式を受け付ける。
type formFields struct {
	values map[string]string
	file   io.ReadCloser
}

// readFormFields はリクエストの値を読み取る。multipartの場合はfileFieldのファイルも取り出す。
// 呼び出し側はcloseを呼ぶこと。
func readFormFields(w http.ResponseWriter, r *http.Request, fileField string) (*formFields, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return readJSONFields(w, r)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartSize)
	if err := r.ParseMultipartForm(maxMultipartSize); err != nil {
		return nil, model.NewInvalidRequestError()
	}

	f := &formFields{values: map[string]string{}}
	for key, vs := range r.MultipartForm.Value {
		if len(vs) > 0 {
			f.values[key] = vs[0]
		}
	}

	file, _, err := r.FormFile(fileField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return nil, model.NewInvalidRequestError()
	default:
		f.file = file
	}
	return f, nil
}

func readJSONFields(w http.ResponseWriter, r *http.Request) (*formFields, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, model.NewInvalidRequestError()
	}

	f := &formFields{values: make(map[string]string, len(raw))}
	for key, v := range raw {
		switch v := v.(type) {
		case string:
			f.values[key] = v
		case float64:
			f.values[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case nil:
		default:
			return nil, model.NewValidationError(key, "文字列または数値を指定してください")
		}
	}
	return f, nil
}

func (f *formFields) get(key string) string {
	return f.values[key]
}

// int は整数値を返す。未指定ならdef。
func (f *formFields) int(key string, def int) (int, error) {
	v, ok := f.values[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, model.NewValidationError(key, fmt.Sprintf("整数を指定してください: %q", v))
	}
	return n, nil
}

// image はアップロードされたファイルを返す。無ければnil。
func (f *formFields) image() io.Reader {
	if f.file == nil {
		return nil
	}
	return f.file
}

func (f *formFields) close() {
	if f.file != nil {
		f.file.Close()
	}
}
