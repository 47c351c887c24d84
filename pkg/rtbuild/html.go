// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtbuild

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wavetermdev/htmltoken"
	"github.com/wavetermdev/rendertree/pkg/rtframe"
)

// FromHTML tokenizes html into frames.
//
//	<rt:component id="5"/>       component frame
//	<rt:region>...</rt:region>   region frame
//	onclick="#handler:7"         event attribute with handler id 7
//	ref="#ref:name"              reference capture on the enclosing element
//
// comments are dropped, doctypes are rejected.

const ComponentTag = "rt:component"
const RegionTag = "rt:region"
const handlerValPrefix = "#handler:"
const refValPrefix = "#ref:"
const refAttrName = "ref"

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

func isVoidTag(tag string) bool {
	return voidTags[strings.ToLower(tag)]
}

func addTokenAttrs(b *Builder, token htmltoken.Token) (string, error) {
	var refId string
	for _, attr := range token.Attr {
		if attr.Key == "" {
			continue
		}
		if attr.Key == refAttrName && strings.HasPrefix(attr.Val, refValPrefix) {
			refId = attr.Val[len(refValPrefix):]
			continue
		}
		if strings.HasPrefix(attr.Val, handlerValPrefix) {
			handlerId, err := strconv.ParseUint(attr.Val[len(handlerValPrefix):], 10, 64)
			if err != nil {
				return "", fmt.Errorf("bad handler id for %q: %w", attr.Key, err)
			}
			b.AddEventHandler(attr.Key, handlerId)
			continue
		}
		b.AddAttribute(attr.Key, attr.Val)
	}
	return refId, nil
}

func getAttr(token htmltoken.Token, key string) string {
	for _, attr := range token.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func addComponentToken(b *Builder, token htmltoken.Token) error {
	idStr := getAttr(token, "id")
	componentId, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return fmt.Errorf("bad %s id %q: %w", ComponentTag, idStr, err)
	}
	b.OpenComponent(componentId)
	for _, attr := range token.Attr {
		if attr.Key == "id" {
			continue
		}
		b.AddAttribute(attr.Key, attr.Val)
	}
	b.CloseComponent()
	return nil
}

func openElementToken(b *Builder, token htmltoken.Token) error {
	b.OpenElement(token.Data)
	refId, err := addTokenAttrs(b, token)
	if err != nil {
		return err
	}
	if refId != "" {
		b.AddReferenceCapture(refId)
	}
	return nil
}

func isWsChar(char rune) bool {
	return char == ' ' || char == '\t' || char == '\n' || char == '\r'
}

func isAllWhitespace(s string) bool {
	for _, char := range s {
		if !isWsChar(char) {
			return false
		}
	}
	return true
}

// whitespace-only text between tags is dropped, other text is trimmed
func processTextStr(s string) string {
	if s == "" || isAllWhitespace(s) {
		return ""
	}
	return strings.TrimFunc(s, isWsChar)
}

func FromHTML(htmlStr string) ([]rtframe.Frame, error) {
	b := MakeBuilder()
	var openTags []string
	iter := htmltoken.NewTokenizer(strings.NewReader(htmlStr))
	for {
		tokenType := iter.Next()
		token := iter.Token()
		switch tokenType {
		case htmltoken.StartTagToken:
			if token.Data == ComponentTag {
				return nil, fmt.Errorf("%s tag must be self closing", ComponentTag)
			}
			if token.Data == RegionTag {
				b.OpenRegion()
				openTags = append(openTags, token.Data)
				continue
			}
			err := openElementToken(b, token)
			if err != nil {
				return nil, err
			}
			if isVoidTag(token.Data) {
				b.CloseElement()
				continue
			}
			openTags = append(openTags, token.Data)
		case htmltoken.EndTagToken:
			if isVoidTag(token.Data) {
				continue
			}
			if len(openTags) == 0 {
				return nil, fmt.Errorf("end tag %q without start tag", token.Data)
			}
			curTag := openTags[len(openTags)-1]
			if curTag != token.Data {
				return nil, fmt.Errorf("end tag %q does not match start tag %q", token.Data, curTag)
			}
			openTags = openTags[:len(openTags)-1]
			if token.Data == RegionTag {
				b.CloseRegion()
			} else {
				b.CloseElement()
			}
		case htmltoken.SelfClosingTagToken:
			if token.Data == ComponentTag {
				err := addComponentToken(b, token)
				if err != nil {
					return nil, err
				}
				continue
			}
			if token.Data == RegionTag {
				b.OpenRegion()
				b.CloseRegion()
				continue
			}
			err := openElementToken(b, token)
			if err != nil {
				return nil, err
			}
			b.CloseElement()
		case htmltoken.TextToken:
			textStr := processTextStr(token.Data)
			if textStr == "" {
				continue
			}
			b.AddText(textStr)
		case htmltoken.CommentToken:
			continue
		case htmltoken.DoctypeToken:
			return nil, errors.New("doctype not supported")
		case htmltoken.ErrorToken:
			if iter.Err() == io.EOF {
				if len(openTags) > 0 {
					return nil, fmt.Errorf("unclosed tag %q", openTags[len(openTags)-1])
				}
				return b.Frames()
			}
			return nil, iter.Err()
		}
	}
}

// HTMLBatch makes a batch that prepends the html into componentId
func HTMLBatch(componentId uint64, htmlStr string) (*rtframe.RenderBatch, error) {
	frames, err := FromHTML(htmlStr)
	if err != nil {
		return nil, err
	}
	return PrependBatch(componentId, frames), nil
}
