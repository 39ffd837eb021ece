package messages

import (
	"errors"
	"fmt"

	"github.com/elecnecta/wifiqr/internal/dify"
	"github.com/elecnecta/wifiqr/internal/imaging"
	"github.com/elecnecta/wifiqr/internal/providers"
	"github.com/elecnecta/wifiqr/internal/wifi"
)

// ID names a user-facing message
type ID string

const (
	Title             ID = "title"
	Instructions      ID = "instructions"
	OpenCamera        ID = "open_camera"
	UploadFile        ID = "upload_file"
	TakePhoto         ID = "take_photo"
	CapturedCaption   ID = "captured_caption"
	Send              ID = "send"
	Retake            ID = "retake"
	Processing        ID = "processing"
	ResultCaption     ID = "result_caption"
	SaveQR            ID = "save_qr"
	ShareLINE         ID = "share_line"
	ShareManually     ID = "share_manually"
	ReturnHome        ID = "return_home"
	ErrRequestFailed  ID = "err_request_failed"
	ErrAPIStatus      ID = "err_api_status"
	ErrTimeout        ID = "err_timeout"
	ErrWorkflowFailed ID = "err_workflow_failed"
	ErrNoOutputURL    ID = "err_no_output_url"
	ErrFetchFailed    ID = "err_fetch_failed"
	ErrBadImage       ID = "err_bad_image"
	ErrNoCredentials  ID = "err_no_credentials"
	ErrImageTooLarge  ID = "err_image_too_large"
	ErrNoImage        ID = "err_no_image"
	ErrReloading      ID = "err_reloading"
)

const DefaultLocale = "ja"

var catalog = map[string]map[ID]string{
	"ja": {
		Title:             "Wi-Fi QR Generator",
		Instructions:      "Wi-Fi情報を含むオブジェクトを撮影してください",
		OpenCamera:        "カメラを起動する",
		UploadFile:        "画像をアップロードする",
		TakePhoto:         "写真を撮影してください",
		CapturedCaption:   "撮影した画像",
		Send:              "送信する",
		Retake:            "撮り直す",
		Processing:        "QRコードを生成しています…",
		ResultCaption:     "Wi-Fi QRコード",
		SaveQR:            "QRを保存する",
		ShareLINE:         "友だちに共有する（LINE）",
		ShareManually:     "画像を保存してLINEで共有してください",
		ReturnHome:        "ホームに戻る",
		ErrRequestFailed:  "APIリクエストに失敗しました",
		ErrAPIStatus:      "API エラー: %d",
		ErrTimeout:        "APIの応答がタイムアウトしました",
		ErrWorkflowFailed: "QRコードの生成に失敗しました",
		ErrNoOutputURL:    "QRコードのURLがレスポンスに含まれていません",
		ErrFetchFailed:    "QRコード画像の取得に失敗しました",
		ErrBadImage:       "画像を読み込めませんでした。JPEGまたはPNGの画像を使用してください",
		ErrNoCredentials:  "画像からWi-Fi情報を読み取れませんでした",
		ErrImageTooLarge:  "画像サイズが大きすぎます",
		ErrNoImage:        "画像が選択されていません",
		ErrReloading:      "数秒後に最初の画面に戻ります",
	},
	"en": {
		Title:             "Wi-Fi QR Generator",
		Instructions:      "Take a photo of something showing your Wi-Fi details",
		OpenCamera:        "Open camera",
		UploadFile:        "Upload an image",
		TakePhoto:         "Take a photo",
		CapturedCaption:   "Captured image",
		Send:              "Send",
		Retake:            "Retake",
		Processing:        "Generating QR code…",
		ResultCaption:     "Wi-Fi QR code",
		SaveQR:            "Save QR",
		ShareLINE:         "Share with friends (LINE)",
		ShareManually:     "Save the image and share it on LINE",
		ReturnHome:        "Return home",
		ErrRequestFailed:  "The API request failed",
		ErrAPIStatus:      "API error: %d",
		ErrTimeout:        "The API did not respond in time",
		ErrWorkflowFailed: "QR code generation failed",
		ErrNoOutputURL:    "The response did not contain a QR code URL",
		ErrFetchFailed:    "Failed to download the QR code image",
		ErrBadImage:       "The image could not be read. Please use a JPEG or PNG image",
		ErrNoCredentials:  "No Wi-Fi details could be read from the image",
		ErrImageTooLarge:  "The image is too large",
		ErrNoImage:        "No image selected",
		ErrReloading:      "Returning to the start screen shortly",
	},
}

// Supported reports whether locale has a catalog
func Supported(locale string) bool {
	_, ok := catalog[locale]
	return ok
}

// Get returns the message for id, falling back to the default locale
func Get(locale string, id ID, args ...any) string {
	msgs, ok := catalog[locale]
	if !ok {
		msgs = catalog[DefaultLocale]
	}
	msg, ok := msgs[id]
	if !ok {
		return string(id)
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// All returns the full catalog for locale, for the UI
func All(locale string) map[ID]string {
	msgs, ok := catalog[locale]
	if !ok {
		msgs = catalog[DefaultLocale]
	}
	out := make(map[ID]string, len(msgs))
	for k, v := range msgs {
		out[k] = v
	}
	return out
}

// ForError maps a pipeline error onto a localized message
func ForError(locale string, err error) string {
	var statusErr *dify.StatusError
	var workflowErr *dify.WorkflowError

	switch {
	case err == nil:
		return ""
	case dify.IsTimeout(err):
		return Get(locale, ErrTimeout)
	case errors.As(err, &statusErr):
		if statusErr.Op == dify.OpFetch {
			return Get(locale, ErrFetchFailed)
		}
		return Get(locale, ErrAPIStatus, statusErr.Got)
	case errors.As(err, &workflowErr):
		return Get(locale, ErrWorkflowFailed)
	case errors.Is(err, dify.ErrNoOutput):
		return Get(locale, ErrNoOutputURL)
	case errors.Is(err, imaging.ErrUnsupportedFormat), errors.Is(err, imaging.ErrEmptyImage):
		return Get(locale, ErrBadImage)
	case errors.Is(err, imaging.ErrTooManyPixels):
		return Get(locale, ErrImageTooLarge)
	case errors.Is(err, providers.ErrNoCredentials), errors.Is(err, wifi.ErrMissingSSID):
		return Get(locale, ErrNoCredentials)
	default:
		return Get(locale, ErrRequestFailed)
	}
}
