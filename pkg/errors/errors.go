// Package errors は advnet 全体のエラーハンドリングと警告システムを提供します。
// 学習状態（ステップ、学習率スケジュール、履歴）は逐次的に結合しているため、
// ここで定義するエラーはすべて致命的として扱われ、リトライされません。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("advnet-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は advnet 全体の警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// SchemaWarning はチェックポイントのアーカイブに任意の配列が欠けている場合の警告です。
// 必須配列の欠落は警告ではなく ResumeError になります。
type SchemaWarning struct {
	Path    string
	Missing string
	Action  string
}

func (w *SchemaWarning) Error() string {
	return fmt.Sprintf("checkpoint archive %s has no %q array: %s", w.Path, w.Missing, w.Action)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *SchemaWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("path", w.Path).
		Str("missing", w.Missing).
		Str("action", w.Action).
		Str("type", "SchemaWarning")
}

// NewSchemaWarning は新しいSchemaWarningを作成します。
func NewSchemaWarning(path, missing, action string) *SchemaWarning {
	return &SchemaWarning{Path: path, Missing: missing, Action: action}
}

// LabelSpaceWarning は正解ラベル集合がラベル空間の大部分を占め、
// ターゲットラベルの棄却サンプリングが遅くなる可能性がある場合の警告です。
type LabelSpaceWarning struct {
	Object     string
	Excluded   int
	LabelSpace int
}

func (w *LabelSpaceWarning) Error() string {
	return fmt.Sprintf("object %q excludes %d of %d labels; target sampling will retry often",
		w.Object, w.Excluded, w.LabelSpace)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *LabelSpaceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("object", w.Object).
		Int("excluded", w.Excluded).
		Int("label_space", w.LabelSpace).
		Str("type", "LabelSpaceWarning")
}

// NewLabelSpaceWarning は新しいLabelSpaceWarningを作成します。
func NewLabelSpaceWarning(object string, excluded, labelSpace int) *LabelSpaceWarning {
	return &LabelSpaceWarning{Object: object, Excluded: excluded, LabelSpace: labelSpace}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// ConfigError はハイパーパラメータやデータセットの場所など、起動時の設定が不正な場合のエラーです。
type ConfigError struct {
	Field  string
	Reason string
	Value  interface{}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("advnet: invalid configuration '%s': %s (got: %v)", e.Field, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConfigError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigError")
}

// NewConfigError は新しいConfigErrorを作成し、スタックトレースを付与します。
func NewConfigError(field, reason string, value interface{}) error {
	err := &ConfigError{Field: field, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// DataError はデータセットのファイル（テクスチャ、labels.txt）が欠落・重複・破損している場合のエラーです。
// Path には問題のあるファイルまたはディレクトリが入ります。
type DataError struct {
	Path   string
	Object string
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	msg := fmt.Sprintf("advnet: data error in %s", e.Path)
	if e.Object != "" {
		msg = fmt.Sprintf("advnet: data error in object %q (%s)", e.Object, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", msg, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", msg, e.Reason)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Str("object", e.Object).
		Str("reason", e.Reason).
		Str("type", "DataError")
}

// NewDataError は新しいDataErrorを作成し、スタックトレースを付与します。
func NewDataError(path, object, reason string, cause error) error {
	err := &DataError{Path: path, Object: object, Reason: reason, Err: cause}
	return errors.WithStack(err)
}

// InvalidLabelShapeError は正解ラベル集合が AllInRange でも Explicit でもない、
// もしくは空である場合のエラーです。契約違反なので即座に停止します。
type InvalidLabelShapeError struct {
	Op    string
	Shape string
}

func (e *InvalidLabelShapeError) Error() string {
	return fmt.Sprintf("advnet: %s: ground truth must be a label range or a non-empty list of ints, got %s", e.Op, e.Shape)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InvalidLabelShapeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("shape", e.Shape).
		Str("type", "InvalidLabelShapeError")
}

// NewInvalidLabelShapeError は新しいInvalidLabelShapeErrorを作成し、スタックトレースを付与します。
func NewInvalidLabelShapeError(op string, shape interface{}) error {
	err := &InvalidLabelShapeError{Op: op, Shape: fmt.Sprintf("%T(%v)", shape, shape)}
	return errors.WithStack(err)
}

// DimensionError は入力テンソルの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("advnet: %s: dimension mismatch on axis %d. Expected %d, got %d", e.Op, e.Axis, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("advnet: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ResumeError はチェックポイントからの再開に失敗した場合のエラーです。
// Kind には ErrCheckpointNotFound または ErrSchemaMismatch が入り、
// 「未学習」と「破損した状態」を呼び出し側が区別できます。
type ResumeError struct {
	Path string
	Kind error
	Err  error
}

func (e *ResumeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("advnet: cannot resume from %s: %v: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("advnet: cannot resume from %s: %v", e.Path, e.Kind)
}

// Is は Kind と一致するかを判定し、errors.Is(err, ErrCheckpointNotFound) のように種別を判定できるようにします。
func (e *ResumeError) Is(target error) bool {
	return target == e.Kind
}

func (e *ResumeError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ResumeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Str("kind", e.Kind.Error()).
		Str("type", "ResumeError")
}

// NewResumeError は新しいResumeErrorを作成し、スタックトレースを付与します。
func NewResumeError(path string, kind, cause error) error {
	err := &ResumeError{Path: path, Kind: kind, Err: cause}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	数値エラー
//
// ===========================================================================

// NumericalInstabilityError は損失や勾配が NaN / Inf になった場合のエラーです。
// 再現性のため、発生時の GlobalStep を保持します。
type NumericalInstabilityError struct {
	Operation  string    // 発生した操作（例: "simulator_loss", "generator_loss"）
	Values     []float64 // 問題のある値
	GlobalStep int       // 発生したステップ
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("advnet: numerical instability detected in %s at global step %d. Values: [%s]",
		e.Operation, e.GlobalStep, valStr)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NumericalInstabilityError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Operation).
		Int("global_step", e.GlobalStep).
		Floats64("values", e.Values).
		Str("type", "NumericalInstabilityError")
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, globalStep int) error {
	err := &NumericalInstabilityError{
		Operation:  operation,
		Values:     values,
		GlobalStep: globalStep,
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrCheckpointNotFound はチェックポイントが存在しない場合の ResumeError 種別です。
	ErrCheckpointNotFound = New("checkpoint not found")

	// ErrSchemaMismatch はチェックポイントのアーカイブが互換性のないスキーマで書かれている場合の種別です。
	ErrSchemaMismatch = New("checkpoint schema mismatch")

	// ErrLabelSpaceExhausted は正解ラベル集合がラベル空間全体を覆い、ターゲットを選べない場合のエラーです。
	ErrLabelSpaceExhausted = New("ground truth covers the whole label space")

	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")
)
