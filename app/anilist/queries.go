package anilist

const mediaFields = `
	id
	title { romaji english native }
	coverImage { extraLarge }
	genres
	siteUrl
	episodes
	status
`

const searchQuery = `
query ($search: String) {
	Media(search: $search, type: ANIME) {` + mediaFields + `}
}`

const searchManyQuery = `
query ($search: String, $perPage: Int) {
	Page(perPage: $perPage) {
		media(search: $search, type: ANIME) {` + mediaFields + `}
	}
}`

const detailsQuery = `
query ($id: Int) {
	Media(id: $id, type: ANIME) {` + mediaFields + `}
}`

const fullScheduleQuery = `
query ($id: Int) {
	Media(id: $id, type: ANIME) {
		airingSchedule(notYetAired: false, perPage: 100) {
			nodes { episode airingAt }
		}
	}
}`

const nextAiringQuery = `
query ($ids: [Int]) {
	Page(perPage: 50) {
		airingSchedules(mediaId_in: $ids, notYetAired: true, sort: TIME) {
			airingAt
			episode
			media {` + mediaFields + `}
		}
	}
}`

const upcomingQuery = `
query ($perPage: Int) {
	Page(perPage: $perPage) {
		airingSchedules(notYetAired: true, sort: TIME) {
			airingAt
			episode
			media {` + mediaFields + `}
		}
	}
}`
