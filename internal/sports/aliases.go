package sports

import "strings"

type cityAlias struct {
	city      string
	nicknames []string
}

// matches reports whether s mentions the city or one of its nicknames as a
// whole word, so "la" does not hit "atlanta".
func (c cityAlias) matches(s string) bool {
	if containsWord(s, c.city) {
		return true
	}
	for _, n := range c.nicknames {
		if containsWord(s, n) {
			return true
		}
	}
	return false
}

var cityAliases = []cityAlias{
	{"los angeles", []string{"la", "lakers", "clippers", "rams", "chargers", "dodgers", "angels"}},
	{"new york", []string{"ny", "knicks", "nets", "giants", "jets", "yankees", "mets", "rangers"}},
	{"golden state", []string{"gs", "warriors", "gsw"}},
	{"san francisco", []string{"sf", "49ers", "giants"}},
	{"kansas city", []string{"kc", "chiefs", "royals"}},
	{"boston", []string{"celtics", "bruins", "red sox", "patriots"}},
	{"miami", []string{"heat", "dolphins", "marlins"}},
	{"chicago", []string{"bulls", "bears", "cubs", "white sox", "blackhawks"}},
	{"dallas", []string{"cowboys", "mavericks", "mavs", "stars", "rangers"}},
	{"houston", []string{"rockets", "texans", "astros"}},
	{"phoenix", []string{"suns", "cardinals", "coyotes", "diamondbacks"}},
	{"denver", []string{"nuggets", "broncos", "avalanche", "rockies"}},
	{"philadelphia", []string{"sixers", "76ers", "eagles", "phillies", "flyers"}},
	{"milwaukee", []string{"bucks", "brewers"}},
	{"minnesota", []string{"timberwolves", "wolves", "vikings", "twins", "wild"}},
	{"cleveland", []string{"cavaliers", "cavs", "browns", "guardians"}},
	{"atlanta", []string{"hawks", "falcons", "braves"}},
	{"toronto", []string{"raptors", "blue jays", "maple leafs"}},
	{"detroit", []string{"pistons", "lions", "tigers", "red wings"}},
	{"sacramento", []string{"kings"}},
	{"orlando", []string{"magic"}},
	{"indiana", []string{"pacers", "colts"}},
	{"memphis", []string{"grizzlies"}},
	{"san antonio", []string{"spurs"}},
	{"oklahoma city", []string{"thunder", "okc"}},
	{"utah", []string{"jazz"}},
	{"portland", []string{"trail blazers", "blazers"}},
	{"new orleans", []string{"pelicans", "saints"}},
	{"charlotte", []string{"hornets", "panthers"}},
	{"washington", []string{"wizards", "commanders", "nationals", "capitals"}},
	{"brooklyn", []string{"nets"}},
	{"seattle", []string{"seahawks", "mariners", "kraken"}},
	{"green bay", []string{"packers"}},
	{"baltimore", []string{"ravens", "orioles"}},
	{"cincinnati", []string{"bengals", "reds"}},
	{"pittsburgh", []string{"steelers", "pirates", "penguins"}},
	{"jacksonville", []string{"jaguars"}},
	{"tennessee", []string{"titans"}},
	{"carolina", []string{"panthers", "hurricanes"}},
	{"tampa bay", []string{"buccaneers", "bucs", "rays", "lightning"}},
	{"arizona", []string{"cardinals", "diamondbacks", "coyotes"}},
	{"las vegas", []string{"raiders"}},
}

// containsWord reports whether word occurs in s bounded by non-alphanumeric
// characters or the ends of s. Both are expected lower case.
func containsWord(s, word string) bool {
	for from := 0; from <= len(s)-len(word); {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if (start == 0 || !isAlnum(s[start-1])) && (end == len(s) || !isAlnum(s[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
