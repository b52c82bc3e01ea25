package service

import "math/rand/v2"

// DefaultSuccessPhrases は投稿成功時に確認文の後ろへ付ける一言です
var DefaultSuccessPhrases = []string{
	"Spreading good vibes, one kudos at a time!",
	"You just made someone's day brighter.",
	"Appreciation looks good on you.",
	"Kindness delivered. Keep it coming!",
	"The team is lucky to have someone like you.",
}

// DefaultErrorPhrases は投稿失敗時に送信者へ返す文言です
// 失敗理由は含めません
var DefaultErrorPhrases = []string{
	"Oops! Your kudos got lost on the way. Please try again in a bit.",
	"Something went wrong and your kudos wasn't delivered. Make sure I'm in that channel and try again.",
	"Sorry, I couldn't deliver your kudos this time. Please try again.",
}

type randomPhrases struct {
	success []string
	failure []string
	intn    func(n int) int
}

// NewRandomPhrases は一覧から一様ランダムに1つ選ぶ PhraseProvider を作成します
// 空の一覧はデフォルトで補います。intn が nil の場合は math/rand/v2 を使います
func NewRandomPhrases(success, failure []string, intn func(n int) int) PhraseProvider {
	if len(success) == 0 {
		success = DefaultSuccessPhrases
	}
	if len(failure) == 0 {
		failure = DefaultErrorPhrases
	}
	if intn == nil {
		intn = rand.IntN
	}
	return &randomPhrases{success: success, failure: failure, intn: intn}
}

func (p *randomPhrases) Success() string {
	return p.success[p.intn(len(p.success))]
}

func (p *randomPhrases) Error() string {
	return p.failure[p.intn(len(p.failure))]
}
