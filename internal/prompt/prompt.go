// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt renders the system prompts sent with chat and
// script-generation requests. Both inject the current cell selection.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// DefaultLanguage is the reply language when none is configured.
const DefaultLanguage = "ja"

// MaxSelectionRows is how many rows of a multi-row selection are included.
const MaxSelectionRows = 2

// Data is the template input.
type Data struct {
	Address  string
	Value    string
	Language string
}

// SelectionLine is the selection summary both prompts embed.
func (d Data) SelectionLine() string {
	return fmt.Sprintf("Selected Cell Address: %s, Selected Cell Value: %s", d.Address, TrimRows(d.Value, MaxSelectionRows))
}

// LanguageDirective tells the model which language to answer in.
func (d Data) LanguageDirective() string {
	switch strings.ToLower(strings.TrimSpace(d.Language)) {
	case "", "ja", "japanese", "日本語":
		return "日本語で回答してください。"
	case "en", "english":
		return "Please answer in English."
	default:
		return fmt.Sprintf("Please answer in %s.", d.Language)
	}
}

// TrimRows keeps the first max lines of a multi-line value.
func TrimRows(value string, max int) string {
	rows := strings.Split(value, "\n")
	if len(rows) <= max {
		return value
	}
	return strings.Join(rows[:max], "\n")
}

var chatTemplate = template.Must(template.New("chat").Parse(`# 役割
あなたは優秀なExcelアドバイザーです。
基本的にはExcelの仕様として回答します。
何かの操作を指示されたら、具体的な指示がない場合は目的を達成するために一般的なExcelの操作方法を教えてください。
{{.LanguageDirective}}
以下の項目は今開いているExcelの選択中のセルの情報です。
セルのアドレスや内容を踏まえて回答します。
3行以上あるデータは2行までのデータのみ記入しています。
{{.SelectionLine}}`))

// CodeExample is the JSON reply shape shown to the model.
const CodeExample = `{
    "description": "このマクロは、ExcelのA1セルとB1セルの値を足し合わせ、その結果をC1セルに表示します。さらに、C1セルの罫線を太くします。",
    "excel_code": "(async () => {\n  await Excel.run(async (context) => {\n    const sheet = context.workbook.worksheets.getActiveWorksheet();\n    const rangeA1 = sheet.getRange('A1');\n    const rangeB1 = sheet.getRange('B1');\n    rangeA1.load('values');\n    rangeB1.load('values');\n    await context.sync();\n    const sum = rangeA1.values[0][0] + rangeB1.values[0][0];\n    const rangeC1 = sheet.getRange('C1');\n    rangeC1.values = [[sum]];\n    rangeC1.format.borders.getItem('EdgeBottom').style = 'Continuous';\n    rangeC1.format.borders.getItem('EdgeBottom').weight = 'Thick';\n    await context.sync();\n  });\n})();"
  }`

var codeTemplate = template.Must(template.New("code").Parse(`# 役割
あなたは優秀なExcelアドバイザーです。

# 重要な制約
- **Excel JavaScript API でサポートされている機能のみ使用すること**
- VBA や COM オブジェクトは使用不可
- 以下のAPIは使用可能: Range, Worksheet, Workbook, Table, Chart, PivotTable, NamedItem, ConditionalFormat
- 以下のAPIは制限あり/未サポート: PivotChart（グラフはChartで作成）、マクロ記録、ActiveX
- プロパティにアクセスする前に必ず load() と context.sync() を呼ぶこと
- 非同期処理は async/await パターンを使用すること

# 条件
- 以下の項目は今開いているExcelの選択中のセルの情報です。
- セルのアドレスや内容を踏まえてExcel JavaScript APIでの処理を出力します。
{{.Data.SelectionLine}}
- 以下のようなjson形式で必ず出力します。
{{.Example}}

# 命令
`))

// Chat renders the conversational system prompt.
func Chat(d Data) (string, error) {
	var buf bytes.Buffer
	if err := chatTemplate.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("failed to render chat prompt: %w", err)
	}
	return buf.String(), nil
}

// Code renders the script-generation system prompt. It demands a JSON reply
// with description and excel_code fields.
func Code(d Data) (string, error) {
	var buf bytes.Buffer
	err := codeTemplate.Execute(&buf, struct {
		Data    Data
		Example string
	}{d, CodeExample})
	if err != nil {
		return "", fmt.Errorf("failed to render code prompt: %w", err)
	}
	return buf.String(), nil
}
